package linkcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/docgen"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/process"
)

// Publisher receives broken link events.
type Publisher interface {
	PublishBrokenLink(ctx context.Context, event *BrokenLinkEvent) error
}

// Report is the outcome of the link verification step.
type Report struct {
	Mode    config.LinkCheckMode `json:"mode"`
	Results []Result             `json:"results"`
	Summary Summary              `json:"summary"`
	Failing []Result             `json:"failing"` // broken links that fail the step under the configured policy
}

// Broken returns every broken link, failing or merely warned about.
func (r *Report) Broken() []Result { return BrokenLinks(r.Results) }

// Verifier runs the link verification step.
type Verifier struct {
	cfg        config.LinkCheckConfig
	gen        config.GeneratorConfig
	runner     process.Runner
	console    io.Writer
	ignore     []*regexp.Regexp
	publisher  Publisher
	cache      Cache
	httpClient *http.Client
	logger     *slog.Logger
}

// NewVerifier creates the step. Ignore patterns must compile.
func NewVerifier(cfg config.LinkCheckConfig, gen config.GeneratorConfig, runner process.Runner, console io.Writer) (*Verifier, error) {
	if console == nil {
		console = io.Discard
	}
	v := &Verifier{cfg: cfg, gen: gen, runner: runner, console: console, logger: slog.Default()}
	for _, p := range cfg.Ignore {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, ferrors.ValidationError("invalid link ignore pattern").WithCause(err).WithContext("pattern", p).Build()
		}
		v.ignore = append(v.ignore, re)
	}
	return v, nil
}

// WithPublisher publishes broken link events to p.
func (v *Verifier) WithPublisher(p Publisher) *Verifier {
	v.publisher = p
	return v
}

// WithCache caches external link verdicts in native mode.
func (v *Verifier) WithCache(c Cache) *Verifier {
	v.cache = c
	return v
}

// WithHTTPClient overrides the client native mode uses for external links.
func (v *Verifier) WithHTTPClient(hc *http.Client) *Verifier {
	v.httpClient = hc
	return v
}

// WithLogger sets the logger.
func (v *Verifier) WithLogger(l *slog.Logger) *Verifier {
	if l != nil {
		v.logger = l
	}
	return v
}

// Verify checks the links of the documentation checked out in dir.
func (v *Verifier) Verify(ctx context.Context, dir string, run RunContext) (*Report, error) {
	report := &Report{Mode: v.cfg.Mode}

	var results []Result
	var err error
	switch v.cfg.Mode {
	case config.LinkCheckNative:
		results, err = v.checkNative(ctx, dir)
	default:
		results, _, err = NewGeneratorChecker(v.gen, v.runner).Check(ctx, dir)
	}
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, ok := ferrors.AsClassified(err); ok {
			return report, err
		}
		return report, ferrors.WrapError(err, ferrors.CategoryLinkCheck, "link check could not complete").Fatal().Build()
	}

	v.applyFilters(results)
	sortResults(results)
	report.Results = results
	report.Summary = Summarize(results)

	for _, r := range report.Broken() {
		if v.fails(r) {
			report.Failing = append(report.Failing, r)
			v.logger.Warn("Broken link", logfields.URL(r.URI), logfields.File(r.Source), logfields.Line(r.Line), slog.Bool("internal", r.Internal))
		} else {
			v.logger.Warn("Broken external link (not failing)", logfields.URL(r.URI), logfields.File(r.Source), logfields.Line(r.Line))
		}
		if v.cfg.Mode == config.LinkCheckNative {
			_, _ = fmt.Fprintln(v.console, r.String())
		}
		v.publish(ctx, r, run)
	}

	v.logger.Info("Link check finished",
		slog.Int("links", report.Summary.Total),
		slog.Int("broken_internal", report.Summary.BrokenInternal),
		slog.Int("broken_external", report.Summary.BrokenExternal))

	if len(report.Failing) > 0 {
		return report, ferrors.LinkCheckError(fmt.Sprintf("%d broken link(s) found", len(report.Failing))).
			WithContext("broken_internal", report.Summary.BrokenInternal).
			WithContext("broken_external", report.Summary.BrokenExternal).
			Build()
	}
	return report, nil
}

func (v *Verifier) checkNative(ctx context.Context, dir string) ([]Result, error) {
	builder := v.gen.Builder
	if builder == "" {
		builder = "html"
	}
	siteDir := filepath.Join(dir, docgen.OutputPath(v.gen, builder))
	if info, err := os.Stat(siteDir); err != nil || !info.IsDir() {
		return nil, ferrors.LinkCheckError("built documentation not found").WithContext("path", siteDir).Build()
	}

	timeout, err := time.ParseDuration(v.cfg.RequestTimeout)
	if err != nil {
		timeout = 15 * time.Second
	}
	checker := NewNativeChecker(NativeOptions{
		BaseURL:        v.cfg.BaseURL,
		SkipExternal:   v.cfg.SkipExternal,
		MaxConcurrent:  v.cfg.MaxConcurrent,
		RequestTimeout: timeout,
		Cache:          v.cache,
	}).WithHTTPClient(v.httpClient).WithLogger(v.logger)
	return checker.Check(ctx, siteDir)
}

func (v *Verifier) applyFilters(results []Result) {
	for i := range results {
		r := &results[i]
		for _, re := range v.ignore {
			if re.MatchString(r.URI) {
				r.Status = StatusIgnored
				break
			}
		}
		if v.cfg.SkipExternal && !r.Internal && r.Status.Failing() {
			r.Status = StatusUnchecked
		}
	}
}

// fails applies the failure policy: internal links always fail, external ones unless downgraded to warnings.
func (v *Verifier) fails(r Result) bool {
	return r.Internal || v.cfg.ExternalFailures != config.FailurePolicyWarn
}

func (v *Verifier) publish(ctx context.Context, r Result, run RunContext) {
	if v.publisher == nil {
		return
	}
	if err := v.publisher.PublishBrokenLink(ctx, NewBrokenLinkEvent(r, run)); err != nil {
		v.logger.Warn("Failed to publish broken link event", logfields.URL(r.URI), logfields.Error(err))
	}
}
