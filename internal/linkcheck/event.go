package linkcheck

import "time"

// BrokenLinkEvent is published for every broken link found by a run.
type BrokenLinkEvent struct {
	URL        string `json:"url"`
	Status     string `json:"status"`
	Code       int    `json:"code"`
	Info       string `json:"info,omitempty"`
	IsInternal bool   `json:"is_internal"`

	Source string `json:"source"`
	Line   int    `json:"line,omitempty"`

	RunID      string `json:"run_id,omitempty"`
	Repository string `json:"repository,omitempty"`
	Revision   string `json:"revision,omitempty"`
	Branch     string `json:"branch,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewBrokenLinkEvent builds an event from a failing result.
func NewBrokenLinkEvent(r Result, run RunContext) *BrokenLinkEvent {
	return &BrokenLinkEvent{
		URL:        r.URI,
		Status:     string(r.Status),
		Code:       r.Code,
		Info:       r.Info,
		IsInternal: r.Internal,
		Source:     r.Source,
		Line:       r.Line,
		RunID:      run.RunID,
		Repository: run.Repository,
		Revision:   run.Revision,
		Branch:     run.Branch,
		Timestamp:  time.Now().UTC(),
	}
}

// RunContext identifies the run that found a broken link.
type RunContext struct {
	RunID      string
	Repository string
	Revision   string
	Branch     string
}
