// Package trigger decides whether a source-control event starts a pipeline run.
package trigger

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// Kind is the type of source-control event.
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
	KindManual      Kind = "manual"
	KindSchedule    Kind = "schedule"
)

// Event is a normalized source-control event.
//
// For pushes Ref is the full pushed ref and Branch its short name. For pull
// requests Branch is the target branch of the request.
type Event struct {
	Kind       Kind      `json:"kind"`
	Branch     string    `json:"branch,omitempty"`
	Ref        string    `json:"ref,omitempty"`
	Revision   string    `json:"revision,omitempty"`
	Repository string    `json:"repository,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// PushEvent builds an Event from a pushed ref such as refs/heads/main.
// A ref that is not a branch leaves Branch empty.
func PushEvent(ref, revision string) Event {
	ev := Event{Kind: KindPush, Ref: ref, Revision: revision, ReceivedAt: time.Now().UTC()}
	ev.Branch = BranchFromRef(ref)
	return ev
}

// PullRequestEvent builds an Event for a pull request targeting branch.
func PullRequestEvent(targetBranch, revision string) Event {
	return Event{
		Kind:       KindPullRequest,
		Branch:     targetBranch,
		Ref:        plumbing.NewBranchReferenceName(targetBranch).String(),
		Revision:   revision,
		ReceivedAt: time.Now().UTC(),
	}
}

// ManualEvent builds an operator-requested Event.
func ManualEvent(branch, revision string) Event {
	return Event{Kind: KindManual, Branch: branch, Revision: revision, ReceivedAt: time.Now().UTC()}
}

// ScheduledEvent builds an Event for a periodic run of branch.
func ScheduledEvent(branch string) Event {
	return Event{Kind: KindSchedule, Branch: branch, ReceivedAt: time.Now().UTC()}
}

// BranchFromRef reduces refs/heads/x to x. Bare names are returned unchanged;
// tags and other refs yield "".
func BranchFromRef(ref string) string {
	if !strings.HasPrefix(ref, "refs/") {
		return ref
	}
	name := plumbing.ReferenceName(ref)
	if name.IsBranch() {
		return name.Short()
	}
	return ""
}

// Pattern is an allow-list entry: an exact branch name, or a prefix when it ends in "*".
type Pattern string

// Match reports whether branch satisfies the pattern.
func (p Pattern) Match(branch string) bool {
	if branch == "" {
		return false
	}
	s := string(p)
	if prefix, ok := strings.CutSuffix(s, "*"); ok {
		return strings.HasPrefix(branch, prefix)
	}
	return s == branch
}

// Evaluator holds the configured allow-list.
type Evaluator struct {
	events   []Kind
	patterns []Pattern
	logger   *slog.Logger
}

// Default allow-list.
var (
	DefaultEvents   = []Kind{KindPush, KindPullRequest}
	DefaultBranches = []Pattern{"main", "update-*", "doc_patch"}
)

// NewEvaluator builds an evaluator from configuration strings. Empty lists fall back to the defaults.
func NewEvaluator(events, branches []string) *Evaluator {
	e := &Evaluator{logger: slog.Default()}
	for _, ev := range events {
		e.events = append(e.events, Kind(strings.TrimSpace(ev)))
	}
	for _, b := range branches {
		e.patterns = append(e.patterns, Pattern(strings.TrimSpace(b)))
	}
	if len(e.events) == 0 {
		e.events = slices.Clone(DefaultEvents)
	}
	if len(e.patterns) == 0 {
		e.patterns = slices.Clone(DefaultBranches)
	}
	return e
}

// WithLogger sets the logger used for decision logging.
func (e *Evaluator) WithLogger(l *slog.Logger) *Evaluator {
	if l != nil {
		e.logger = l
	}
	return e
}

// Patterns returns the configured branch patterns.
func (e *Evaluator) Patterns() []Pattern { return slices.Clone(e.patterns) }

// Match decides whether an event of the given kind on branch should start a run.
func (e *Evaluator) Match(kind Kind, branch string) bool {
	if kind == KindManual || kind == KindSchedule {
		return true
	}
	if !slices.Contains(e.events, kind) {
		return false
	}
	return slices.ContainsFunc(e.patterns, func(p Pattern) bool { return p.Match(branch) })
}

// Evaluate is Match for a full event. Unmatched events are only logged at debug level.
func (e *Evaluator) Evaluate(ev Event) bool {
	ok := e.Match(ev.Kind, ev.Branch)
	if !ok {
		e.logger.Debug("Event ignored: branch not in allow-list",
			logfields.Event(string(ev.Kind)),
			logfields.Branch(ev.Branch),
			logfields.Ref(ev.Ref))
	}
	return ok
}
