package checkout

import (
	stderrors "errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// Failure reasons recorded in the error context under "reason".
const (
	ReasonAuth     = "auth"
	ReasonNotFound = "not_found"
	ReasonNetwork  = "network"
	ReasonRevision = "revision"
	ReasonLocal    = "local"
)

// classifyError turns a go-git failure into a fatal checkout error.
func classifyError(err error, op, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	reason := ReasonNetwork
	msg := "failed to fetch repository"
	l := strings.ToLower(err.Error())
	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(l, "authentication"),
		strings.Contains(l, "invalid username or password"),
		strings.Contains(l, "permission denied"):
		reason, msg = ReasonAuth, "authentication failed for repository"
	case stderrors.Is(err, transport.ErrRepositoryNotFound),
		strings.Contains(l, "repository not found"),
		strings.Contains(l, "does not exist"):
		reason, msg = ReasonNotFound, "repository not found"
	case stderrors.Is(err, plumbing.ErrReferenceNotFound),
		strings.Contains(l, "couldn't find remote ref"),
		strings.Contains(l, "object not found"):
		reason, msg = ReasonRevision, "requested revision not found"
	}

	return errors.WrapError(err, errors.CategoryCheckout, msg).
		Fatal().
		WithContext("op", op).
		WithContext("url", url).
		WithContext("reason", reason).
		Build()
}

// Reason returns the classified failure reason of a checkout error, or "".
func Reason(err error) string {
	ce, ok := errors.AsClassified(err)
	if !ok {
		return ""
	}
	reason, _ := ce.Context().GetString("reason")
	return reason
}
