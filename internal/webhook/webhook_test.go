package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

const githubPush = `{
  "ref": "refs/heads/update-intro",
  "after": "9f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e",
  "deleted": false,
  "repository": {"full_name": "acme/docs"},
  "sender": {"login": "octocat"}
}`

const githubPR = `{
  "action": "synchronize",
  "number": 42,
  "pull_request": {"head": {"sha": "abc123"}, "base": {"ref": "main"}},
  "repository": {"full_name": "acme/docs"},
  "sender": {"login": "octocat"}
}`

const gitlabMR = `{
  "user": {"username": "tanuki"},
  "object_attributes": {"iid": 7, "action": "open", "target_branch": "doc_patch", "last_commit": {"id": "def456"}},
  "project": {"path_with_namespace": "acme/docs"}
}`

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		forge  config.ForgeType
		header http.Header
		body   string
		want   trigger.Event
	}{
		{
			name:   "github push",
			forge:  config.ForgeGitHub,
			header: headers(HeaderGitHubEvent, "push"),
			body:   githubPush,
			want: trigger.Event{Kind: trigger.KindPush, Branch: "update-intro", Ref: "refs/heads/update-intro",
				Revision: "9f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e", Repository: "acme/docs", Sender: "octocat"},
		},
		{
			name:   "github pull request targets base branch",
			forge:  config.ForgeGitHub,
			header: headers(HeaderGitHubEvent, "pull_request"),
			body:   githubPR,
			want: trigger.Event{Kind: trigger.KindPullRequest, Branch: "main", Ref: "refs/pull/42/head",
				Revision: "abc123", Repository: "acme/docs", Sender: "octocat"},
		},
		{
			name:   "forgejo push",
			forge:  config.ForgeForgejo,
			header: headers(HeaderForgejoEvent, "push"),
			body:   strings.Replace(githubPush, `"login": "octocat"`, `"login": "forgejo-user"`, 1),
			want: trigger.Event{Kind: trigger.KindPush, Branch: "update-intro", Ref: "refs/heads/update-intro",
				Revision: "9f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e", Repository: "acme/docs", Sender: "forgejo-user"},
		},
		{
			name:   "gitea header",
			forge:  config.ForgeForgejo,
			header: headers(HeaderGiteaEvent, "pull_request"),
			body:   strings.Replace(githubPR, "synchronize", "synchronized", 1),
			want: trigger.Event{Kind: trigger.KindPullRequest, Branch: "main", Ref: "refs/pull/42/head",
				Revision: "abc123", Repository: "acme/docs", Sender: "octocat"},
		},
		{
			name:   "gitlab merge request",
			forge:  config.ForgeGitLab,
			header: headers(HeaderGitLabEvent, "Merge Request Hook"),
			body:   gitlabMR,
			want: trigger.Event{Kind: trigger.KindPullRequest, Branch: "doc_patch", Ref: "refs/merge-requests/7/head",
				Revision: "def456", Repository: "acme/docs", Sender: "tanuki"},
		},
		{
			name:   "gitlab push",
			forge:  config.ForgeGitLab,
			header: headers(HeaderGitLabEvent, "Push Hook"),
			body:   `{"ref": "refs/heads/main", "after": "aaa", "checkout_sha": "aaa", "user_username": "tanuki", "project": {"path_with_namespace": "acme/docs"}}`,
			want: trigger.Event{Kind: trigger.KindPush, Branch: "main", Ref: "refs/heads/main",
				Revision: "aaa", Repository: "acme/docs", Sender: "tanuki"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.forge, tt.header, []byte(tt.body))
			require.NoError(t, err)
			got.ReceivedAt = tt.want.ReceivedAt
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Ignored(t *testing.T) {
	tests := []struct {
		name   string
		forge  config.ForgeType
		header http.Header
		body   string
	}{
		{"ping", config.ForgeGitHub, headers(HeaderGitHubEvent, "ping"), `{"zen": "hi"}`},
		{"closed pull request", config.ForgeGitHub, headers(HeaderGitHubEvent, "pull_request"), strings.Replace(githubPR, "synchronize", "closed", 1)},
		{"branch deletion", config.ForgeGitHub, headers(HeaderGitHubEvent, "push"), `{"ref": "refs/heads/x", "after": "0000000000000000000000000000000000000000", "deleted": true}`},
		{"gitlab tag push", config.ForgeGitLab, headers(HeaderGitLabEvent, "Tag Push Hook"), `{}`},
		{"gitlab merged", config.ForgeGitLab, headers(HeaderGitLabEvent, "Merge Request Hook"), strings.Replace(gitlabMR, `"open"`, `"merge"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.forge, tt.header, []byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIgnored)
		})
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse(config.ForgeGitHub, headers(HeaderGitHubEvent, "push"), []byte("{"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIgnored)
}

func TestValidateSignature(t *testing.T) {
	body := []byte(githubPush)
	secret := "s3cret"

	assert.NoError(t, ValidateSignature(config.ForgeGitHub, http.Header{}, body, ""), "no secret disables validation")
	assert.NoError(t, ValidateSignature(config.ForgeGitHub, headers(HeaderHubSignature256, Sign(body, secret)), body, secret))

	tampered := append([]byte{}, body...)
	tampered[10] = 'X'
	assert.ErrorIs(t, ValidateSignature(config.ForgeGitHub, headers(HeaderHubSignature256, Sign(body, secret)), tampered, secret), ErrInvalidSignature)
	assert.ErrorIs(t, ValidateSignature(config.ForgeGitHub, http.Header{}, body, secret), ErrInvalidSignature)
	assert.ErrorIs(t, ValidateSignature(config.ForgeGitHub, headers(HeaderHubSignature256, "sha1=abc"), body, secret), ErrInvalidSignature)

	bare := strings.TrimPrefix(Sign(body, secret), "sha256=")
	assert.NoError(t, ValidateSignature(config.ForgeForgejo, headers(HeaderForgejoSignature, bare), body, secret))
	assert.NoError(t, ValidateSignature(config.ForgeForgejo, headers(HeaderGiteaSignature, bare), body, secret))
	assert.Error(t, ValidateSignature(config.ForgeGitHub, headers(HeaderForgejoSignature, bare), body, secret), "github only accepts X-Hub-Signature-256")

	assert.NoError(t, ValidateSignature(config.ForgeGitLab, headers(HeaderGitLabToken, secret), body, secret))
	assert.ErrorIs(t, ValidateSignature(config.ForgeGitLab, headers(HeaderGitLabToken, "wrong"), body, secret), ErrInvalidSignature)
}

func newTestHandler(secret string, d DispatcherFunc) *Handler {
	return NewHandler(config.WebhookConfig{Path: "/webhook", Forge: config.ForgeGitHub, Secret: secret}, d, nil)
}

func post(h http.Handler, event, body string, hdr http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(HeaderGitHubEvent, event)
	for k, v := range hdr {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_QueuesMatchingEvent(t *testing.T) {
	var got trigger.Event
	h := newTestHandler("key", func(ev trigger.Event) (string, error) {
		got = ev
		return "run-1", nil
	})

	rec := post(h, "push", githubPush, headers(HeaderHubSignature256, Sign([]byte(githubPush), "key")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "update-intro", got.Branch)
}

func TestHandler_UnmatchedBranchIsIgnored(t *testing.T) {
	h := newTestHandler("", func(trigger.Event) (string, error) { return "", nil })

	rec := post(h, "push", githubPush, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ignored", resp.Status)
	assert.Empty(t, resp.RunID)
}

func TestHandler_RejectsBadSignature(t *testing.T) {
	called := false
	h := newTestHandler("key", func(trigger.Event) (string, error) {
		called = true
		return "run-1", nil
	})

	rec := post(h, "push", githubPush, headers(HeaderHubSignature256, Sign([]byte(githubPush), "other")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestHandler_PingIsAcknowledged(t *testing.T) {
	h := newTestHandler("", func(trigger.Event) (string, error) { return "", errors.New("must not be called") })

	rec := post(h, "ping", `{"zen": "Keep it logically awesome."}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ignored"`)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler("", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
