// Package checkout fetches the repository working tree a pipeline run verifies.
package checkout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// fetchedRef is where the requested ref is stored locally.
const fetchedRef = plumbing.ReferenceName("refs/remotes/origin/docgate-target")

// Request describes what to check out.
type Request struct {
	URL      string
	Ref      string // full ref (refs/heads/x, refs/pull/1/head) or a bare branch name
	Revision string // optional commit to pin; must be reachable from Ref
	Depth    int    // ignored when Revision is set
	Auth     *config.AuthConfig
}

// Result describes the checked out tree.
type Result struct {
	Path     string
	Revision string
	Branch   string
}

// Checkouter clones with go-git.
type Checkouter struct {
	progress io.Writer
	logger   *slog.Logger
}

// New creates a Checkouter. progress receives go-git's transfer progress (nil discards it).
func New(progress io.Writer) *Checkouter {
	return &Checkouter{progress: progress, logger: slog.Default()}
}

// WithLogger sets the logger.
func (c *Checkouter) WithLogger(l *slog.Logger) *Checkouter {
	if l != nil {
		c.logger = l
	}
	return c
}

// Checkout fetches req.Ref into dest and checks out req.Revision (or the ref tip).
func (c *Checkouter) Checkout(ctx context.Context, dest string, req Request) (*Result, error) {
	if req.URL == "" {
		return nil, errors.CheckoutError("repository URL is required").Build()
	}
	ref := normalizeRef(req.Ref)
	log := c.logger.With(logfields.URL(req.URL), logfields.Ref(ref.String()), logfields.Path(dest))

	auth, err := AuthMethod(req.Auth)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCheckout, "invalid checkout credentials").
			Fatal().WithContext("reason", ReasonAuth).Build()
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to clear checkout directory").Build()
	}
	repo, err := git.PlainInit(dest, false)
	if err != nil {
		return nil, classifyError(err, "init", req.URL)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{req.URL}}); err != nil {
		return nil, classifyError(err, "remote", req.URL)
	}

	depth := req.Depth
	if req.Revision != "" {
		depth = 0
	}
	log.Info("Fetching repository", slog.Int("depth", depth))

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("+%s:%s", ref, fetchedRef))},
		Depth:      depth,
		Auth:       auth,
		Progress:   c.progress,
		Tags:       git.NoTags,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError(err, "fetch", req.URL)
	}

	target, err := repo.Reference(fetchedRef, true)
	if err != nil {
		return nil, classifyError(err, "resolve", req.URL)
	}
	hash := target.Hash()
	if req.Revision != "" {
		h, rerr := repo.ResolveRevision(plumbing.Revision(req.Revision))
		if rerr != nil {
			return nil, errors.WrapError(rerr, errors.CategoryCheckout, "requested revision not found").
				Fatal().
				WithContext("revision", req.Revision).
				WithContext("reason", ReasonRevision).
				Build()
		}
		hash = *h
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, classifyError(err, "worktree", req.URL)
	}
	opts := &git.CheckoutOptions{Hash: hash, Force: true}
	branch := ""
	if ref.IsBranch() {
		branch = ref.Short()
		opts.Branch = ref
		opts.Create = true
	}
	if err := wt.Checkout(opts); err != nil {
		return nil, classifyError(err, "checkout", req.URL)
	}

	log.Info("Repository checked out", logfields.Revision(hash.String()))
	return &Result{Path: dest, Revision: hash.String(), Branch: branch}, nil
}

// Open uses an existing working tree as the run's source and reports its HEAD.
func Open(dir string) (*Result, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCheckout, "source directory is not a git working tree").
			Fatal().
			WithContext("path", dir).
			WithContext("reason", ReasonLocal).
			Build()
	}
	head, err := repo.Head()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCheckout, "failed to resolve HEAD").
			Fatal().
			WithContext("path", dir).
			WithContext("reason", ReasonLocal).
			Build()
	}
	res := &Result{Path: dir, Revision: head.Hash().String()}
	if head.Name().IsBranch() {
		res.Branch = head.Name().Short()
	}
	return res, nil
}

func normalizeRef(ref string) plumbing.ReferenceName {
	switch {
	case ref == "":
		return plumbing.NewBranchReferenceName("main")
	case strings.HasPrefix(ref, "refs/"):
		return plumbing.ReferenceName(ref)
	default:
		return plumbing.NewBranchReferenceName(ref)
	}
}
