package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/version"
)

// NativeOptions configure the in-process checker.
type NativeOptions struct {
	BaseURL        string
	SkipExternal   bool
	MaxConcurrent  int
	RequestTimeout time.Duration
	Cache          Cache // optional external link cache
}

// NativeChecker verifies links found in built HTML without the generator.
type NativeChecker struct {
	opts       NativeOptions
	base       *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNativeChecker creates a checker. Proxy settings are taken from the environment.
func NewNativeChecker(opts NativeOptions) *NativeChecker {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	var base *url.URL
	if opts.BaseURL != "" {
		base, _ = url.Parse(opts.BaseURL)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &NativeChecker{
		opts: opts,
		base: base,
		httpClient: &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				return nil
			},
		},
		logger: slog.Default(),
	}
}

// WithHTTPClient replaces the HTTP client used for external links.
func (c *NativeChecker) WithHTTPClient(hc *http.Client) *NativeChecker {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the logger.
func (c *NativeChecker) WithLogger(l *slog.Logger) *NativeChecker {
	if l != nil {
		c.logger = l
	}
	return c
}

type occurrence struct {
	link   Link
	source string // page path relative to the output root
}

// Check walks siteDir and verifies every link found in its HTML pages.
func (c *NativeChecker) Check(ctx context.Context, siteDir string) ([]Result, error) {
	var occurrences []occurrence
	err := filepath.WalkDir(siteDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".html") {
			return nil
		}
		links, lerr := ExtractLinks(p)
		if lerr != nil {
			return lerr
		}
		rel, _ := filepath.Rel(siteDir, p)
		for _, l := range links {
			if ShouldVerify(l) {
				occurrences = append(occurrences, occurrence{link: l, source: filepath.ToSlash(rel)})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan built site %s: %w", siteDir, err)
	}

	results := make([]Result, len(occurrences))
	external := map[string][]int{}
	for i, occ := range occurrences {
		r := Result{URI: occ.link.URL, Source: occ.source, Line: occ.link.Line}
		if IsInternal(occ.link.URL, c.base) {
			r.Internal = true
			c.checkInternal(siteDir, occ, &r)
		} else if target, ok := c.externalTarget(occ.link.URL); !ok || c.opts.SkipExternal {
			r.Status = StatusUnchecked
		} else {
			external[target] = append(external[target], i)
		}
		results[i] = r
	}

	if err := c.checkExternal(ctx, external, results); err != nil {
		return nil, err
	}
	sortResults(results)
	return results, nil
}

// externalTarget returns the URL to request for an external link. Protocol-relative
// links take the base URL scheme (https without one). Only http and https are checkable.
func (c *NativeChecker) externalTarget(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return link, true
	}
	if u.Scheme == "" && u.Host != "" {
		u.Scheme = "https"
		if c.base != nil && c.base.Scheme != "" {
			u.Scheme = c.base.Scheme
		}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	default:
		return link, false
	}
}

func (c *NativeChecker) checkInternal(siteDir string, occ occurrence, r *Result) {
	u, err := url.Parse(occ.link.URL)
	if err != nil {
		r.Status, r.Info = StatusBroken, "malformed URL"
		return
	}
	target := u.Path
	if target == "" {
		r.Status = StatusWorking
		return
	}
	if unescaped, uerr := url.PathUnescape(target); uerr == nil {
		target = unescaped
	}

	var rel string
	switch {
	case u.Host != "":
		rel = strings.TrimPrefix(target, c.basePath())
	case strings.HasPrefix(target, "/"):
		rel = strings.TrimPrefix(target, c.basePath())
	default:
		rel = path.Join(path.Dir(occ.source), target)
	}
	rel = path.Clean("/" + rel)[1:]

	full := filepath.Join(siteDir, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		_, err = os.Stat(filepath.Join(full, "index.html"))
	}
	if err != nil {
		r.Status, r.Info = StatusBroken, "target does not exist: "+rel
		return
	}
	r.Status = StatusWorking
}

func (c *NativeChecker) basePath() string {
	if c.base == nil {
		return "/"
	}
	p := c.base.Path
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// checkExternal verifies each distinct external URL once, bounded by MaxConcurrent.
func (c *NativeChecker) checkExternal(ctx context.Context, external map[string][]int, results []Result) error {
	sem := make(chan struct{}, c.opts.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for uri, idx := range external {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(uri string, idx []int) {
			defer wg.Done()
			defer func() { <-sem }()

			status, code, info := c.verifyExternal(ctx, uri)
			mu.Lock()
			for _, i := range idx {
				results[i].Status, results[i].Code, results[i].Info = status, code, info
			}
			mu.Unlock()
		}(uri, idx)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *NativeChecker) verifyExternal(ctx context.Context, uri string) (Status, int, string) {
	if c.opts.Cache != nil {
		if entry, err := c.opts.Cache.Lookup(ctx, uri); err != nil {
			c.logger.Debug("Link cache lookup failed", logfields.URL(uri), logfields.Error(err))
		} else if entry != nil {
			return entry.Status, entry.Code, entry.Info
		}
	}

	status, code, info := c.checkHTTP(ctx, uri)
	if c.opts.Cache != nil && ctx.Err() == nil {
		entry := &CacheEntry{URL: uri, Status: status, Code: code, Info: info}
		if err := c.opts.Cache.Store(ctx, entry); err != nil {
			c.logger.Debug("Link cache update failed", logfields.URL(uri), logfields.Error(err))
		}
	}
	return status, code, info
}

// checkHTTP issues HEAD and falls back to GET when the server rejects or mishandles HEAD.
func (c *NativeChecker) checkHTTP(ctx context.Context, uri string) (Status, int, string) {
	code, err := c.request(ctx, http.MethodHead, uri)
	if err == nil && code >= 400 {
		code, err = c.request(ctx, http.MethodGet, uri)
	}
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return StatusTimeout, 0, err.Error()
		}
		return StatusBroken, 0, err.Error()
	}
	switch {
	case code == http.StatusTooManyRequests:
		return StatusRateLimited, code, "rate limited"
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		// the resource exists but needs credentials
		return StatusWorking, code, http.StatusText(code)
	case code >= 400:
		return StatusBroken, code, fmt.Sprintf("HTTP %d %s", code, http.StatusText(code))
	default:
		return StatusWorking, code, ""
	}
}

func (c *NativeChecker) request(ctx context.Context, method, uri string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, nil
}
