package linkcheck

import (
	"cmp"
	"fmt"
	"slices"
)

// Status is the verdict for one link.
type Status string

const (
	StatusWorking     Status = "working"
	StatusBroken      Status = "broken"
	StatusRedirected  Status = "redirected"
	StatusIgnored     Status = "ignored"
	StatusUnchecked   Status = "unchecked"
	StatusTimeout     Status = "timeout"
	StatusRateLimited Status = "rate-limited"
)

// Failing reports whether the status counts as a broken link.
// Timeouts are failures: an unreachable target is indistinguishable from a dead one.
func (s Status) Failing() bool {
	return s == StatusBroken || s == StatusTimeout
}

// Result is the verdict for one link occurrence.
type Result struct {
	URI      string `json:"uri"`
	Source   string `json:"source"` // document or page the link appears in
	Line     int    `json:"line,omitempty"`
	Status   Status `json:"status"`
	Code     int    `json:"code,omitempty"` // HTTP status when known
	Info     string `json:"info,omitempty"`
	Internal bool   `json:"internal"`
}

// String renders a broken-link line for the console.
func (r Result) String() string {
	loc := r.Source
	if r.Line > 0 {
		loc = fmt.Sprintf("%s:%d", r.Source, r.Line)
	}
	kind := "external"
	if r.Internal {
		kind = "internal"
	}
	s := fmt.Sprintf("%s: [%s] %s (%s)", loc, r.Status, r.URI, kind)
	if r.Info != "" {
		s += " - " + r.Info
	}
	return s
}

// Summary counts results by outcome.
type Summary struct {
	Total          int `json:"total"`
	Broken         int `json:"broken"`
	BrokenInternal int `json:"broken_internal"`
	BrokenExternal int `json:"broken_external"`
	Ignored        int `json:"ignored"`
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch {
		case r.Status.Failing():
			s.Broken++
			if r.Internal {
				s.BrokenInternal++
			} else {
				s.BrokenExternal++
			}
		case r.Status == StatusIgnored || r.Status == StatusUnchecked:
			s.Ignored++
		}
	}
	return s
}

// BrokenLinks returns the failing results.
func BrokenLinks(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Status.Failing() {
			out = append(out, r)
		}
	}
	return out
}

// sortResults orders results by source, line and URI so reports are stable across runs.
func sortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Or(
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.URI, b.URI),
		)
	})
}
