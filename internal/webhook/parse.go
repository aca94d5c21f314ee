// Package webhook turns forge webhook deliveries into trigger events.
package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Event headers.
const (
	HeaderGitHubEvent  = "X-GitHub-Event"
	HeaderForgejoEvent = "X-Forgejo-Event"
	HeaderGiteaEvent   = "X-Gitea-Event"
	HeaderGitLabEvent  = "X-Gitlab-Event"
)

const zeroRevision = "0000000000000000000000000000000000000000"

// ErrIgnored marks deliveries that are valid but never start a run
// (pings, closed pull requests, branch deletions, other event types).
var ErrIgnored = errors.ValidationError("webhook delivery ignored").Build()

// Parse decodes a delivery from forge into a trigger event.
func Parse(forge config.ForgeType, header http.Header, body []byte) (trigger.Event, error) {
	switch forge {
	case config.ForgeGitLab:
		return parseGitLab(header.Get(HeaderGitLabEvent), body)
	case config.ForgeForgejo:
		kind := header.Get(HeaderForgejoEvent)
		if kind == "" {
			kind = header.Get(HeaderGiteaEvent)
		}
		if kind == "" {
			kind = header.Get(HeaderGitHubEvent)
		}
		return parseGitHubStyle(kind, body, forgejoPRActions)
	default:
		return parseGitHubStyle(header.Get(HeaderGitHubEvent), body, githubPRActions)
	}
}

type repository struct {
	FullName string `json:"full_name"`
}

type user struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (u user) name() string {
	switch {
	case u.Login != "":
		return u.Login
	case u.Username != "":
		return u.Username
	default:
		return u.Name
	}
}

type pushPayload struct {
	Ref        string     `json:"ref"`
	After      string     `json:"after"`
	Deleted    bool       `json:"deleted"`
	Repository repository `json:"repository"`
	Sender     user       `json:"sender"`
	Pusher     user       `json:"pusher"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository repository `json:"repository"`
	Sender     user       `json:"sender"`
}

// Pull request actions that change the code under review.
var (
	githubPRActions  = map[string]bool{"opened": true, "synchronize": true, "reopened": true, "ready_for_review": true}
	forgejoPRActions = map[string]bool{"opened": true, "synchronized": true, "reopened": true}
)

func parseGitHubStyle(kind string, body []byte, prActions map[string]bool) (trigger.Event, error) {
	switch kind {
	case "push":
		var p pushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return trigger.Event{}, invalidPayload(kind, err)
		}
		if p.Deleted || p.After == zeroRevision {
			return trigger.Event{}, ignored(kind, "branch deleted")
		}
		ev := trigger.PushEvent(p.Ref, p.After)
		ev.Repository = p.Repository.FullName
		ev.Sender = p.Sender.name()
		if ev.Sender == "" {
			ev.Sender = p.Pusher.name()
		}
		return ev, nil

	case "pull_request":
		var p pullRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return trigger.Event{}, invalidPayload(kind, err)
		}
		if !prActions[p.Action] {
			return trigger.Event{}, ignored(kind, "action "+p.Action)
		}
		ev := trigger.PullRequestEvent(p.PullRequest.Base.Ref, p.PullRequest.Head.SHA)
		ev.Ref = fmt.Sprintf("refs/pull/%d/head", p.Number)
		ev.Repository = p.Repository.FullName
		ev.Sender = p.Sender.name()
		return ev, nil

	default:
		return trigger.Event{}, ignored(kind, "unsupported event")
	}
}

type gitlabPushPayload struct {
	Ref         string `json:"ref"`
	After       string `json:"after"`
	CheckoutSHA string `json:"checkout_sha"`
	UserName    string `json:"user_username"`
	Project     struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

type gitlabMergeRequestPayload struct {
	User             user `json:"user"`
	ObjectAttributes struct {
		IID          int    `json:"iid"`
		Action       string `json:"action"`
		TargetBranch string `json:"target_branch"`
		LastCommit   struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
}

var gitlabMRActions = map[string]bool{"open": true, "update": true, "reopen": true}

func parseGitLab(kind string, body []byte) (trigger.Event, error) {
	switch kind {
	case "Push Hook":
		var p gitlabPushPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return trigger.Event{}, invalidPayload(kind, err)
		}
		if p.After == zeroRevision || (p.CheckoutSHA == "" && p.After == "") {
			return trigger.Event{}, ignored(kind, "branch deleted")
		}
		rev := p.CheckoutSHA
		if rev == "" {
			rev = p.After
		}
		ev := trigger.PushEvent(p.Ref, rev)
		ev.Repository = p.Project.PathWithNamespace
		ev.Sender = p.UserName
		return ev, nil

	case "Merge Request Hook":
		var p gitlabMergeRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return trigger.Event{}, invalidPayload(kind, err)
		}
		attrs := p.ObjectAttributes
		if !gitlabMRActions[attrs.Action] {
			return trigger.Event{}, ignored(kind, "action "+attrs.Action)
		}
		ev := trigger.PullRequestEvent(attrs.TargetBranch, attrs.LastCommit.ID)
		ev.Ref = fmt.Sprintf("refs/merge-requests/%d/head", attrs.IID)
		ev.Repository = p.Project.PathWithNamespace
		ev.Sender = p.User.name()
		return ev, nil

	default:
		return trigger.Event{}, ignored(kind, "unsupported event")
	}
}

func invalidPayload(kind string, err error) error {
	return errors.ValidationError("invalid webhook payload").
		WithCause(err).
		WithContext("event", kind).
		Build()
}

func ignored(kind, reason string) error {
	if strings.TrimSpace(kind) == "" {
		kind = "unknown"
	}
	return errors.WrapError(ErrIgnored, errors.CategoryValidation, ErrIgnored.Message()).
		WithContext("event", kind).
		WithContext("reason", reason).
		Build()
}
