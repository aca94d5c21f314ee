package linkcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return root
}

func TestExtractLinksFromReader(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <link rel="stylesheet" href="_static/basic.css">
  <script src="_static/doctools.js"></script>
</head>
<body>
  <a href="#top">top</a>
  <a
     href="usage.html#install">usage</a>
  <img src="_images/logo.png" alt="logo"/>
  <a href="mailto:docs@example.com">mail</a>
</body>
</html>`
	links, err := ExtractLinksFromReader(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, links, 6)

	assert.Equal(t, Link{URL: "_static/basic.css", Tag: "link", Attribute: "href", Line: 4}, links[0])
	assert.Equal(t, 5, links[1].Line)
	assert.Equal(t, "usage.html#install", links[3].URL)
	assert.Equal(t, 9, links[3].Line)
	assert.Equal(t, 11, links[4].Line)

	var verifiable int
	for _, l := range links {
		if ShouldVerify(l) {
			verifiable++
		}
	}
	assert.Equal(t, 4, verifiable)
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal("usage.html", nil))
	assert.True(t, IsInternal("/docs/usage.html", nil))
	assert.False(t, IsInternal("https://example.com/x", nil))
	base := mustURL(t, "https://docs.example.com/project/")
	assert.True(t, IsInternal("https://docs.example.com/project/x.html", base))
	assert.False(t, IsInternal("https://other.example.com/", base))
}

func TestNativeChecker_InternalLinks(t *testing.T) {
	site := writeSite(t, map[string]string{
		"index.html":        `<a href="usage.html#a">u</a><a href="api/">api</a><a href="missing.html">x</a>`,
		"usage.html":        `<a href="index.html">home</a><img src="_images/gone.png">`,
		"api/index.html":    `<a href="../usage.html">up</a><link href="../_static/site.css">`,
		"_static/site.css":  `body{}`,
		"_images/.keep":     ``,
		"_static/extra.txt": `x`,
	})

	results, err := NewNativeChecker(NativeOptions{}).Check(context.Background(), site)
	require.NoError(t, err)

	broken := BrokenLinks(results)
	require.Len(t, broken, 2)
	assert.Equal(t, "index.html", broken[0].Source)
	assert.Equal(t, "missing.html", broken[0].URI)
	assert.True(t, broken[0].Internal)
	assert.Equal(t, "usage.html", broken[1].Source)
	assert.Equal(t, "_images/gone.png", broken[1].URI)
}

func TestNativeChecker_ExternalLinks(t *testing.T) {
	var headCalls, getCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			headCalls.Add(1)
		} else {
			getCalls.Add(1)
		}
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/no-head":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/private":
			w.WriteHeader(http.StatusForbidden)
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	site := writeSite(t, map[string]string{
		"index.html": `<a href="` + srv.URL + `/ok">a</a><a href="` + srv.URL + `/ok">again</a>` +
			`<a href="` + srv.URL + `/no-head">b</a><a href="` + srv.URL + `/private">c</a>` +
			`<a href="` + srv.URL + `/busy">d</a><a href="` + srv.URL + `/gone">e</a>`,
	})

	results, err := NewNativeChecker(NativeOptions{}).WithHTTPClient(srv.Client()).Check(context.Background(), site)
	require.NoError(t, err)
	require.Len(t, results, 6)

	byURI := map[string]Status{}
	for _, r := range results {
		byURI[strings.TrimPrefix(r.URI, srv.URL)] = r.Status
		assert.False(t, r.Internal)
	}
	assert.Equal(t, StatusWorking, byURI["/ok"])
	assert.Equal(t, StatusWorking, byURI["/no-head"])
	assert.Equal(t, StatusWorking, byURI["/private"])
	assert.Equal(t, StatusRateLimited, byURI["/busy"])
	assert.Equal(t, StatusBroken, byURI["/gone"])

	// /ok appears twice but is checked once
	assert.Equal(t, int64(5), headCalls.Load())
}

func TestNativeChecker_SkipExternal(t *testing.T) {
	site := writeSite(t, map[string]string{"index.html": `<a href="https://unreachable.invalid/">x</a>`})
	results, err := NewNativeChecker(NativeOptions{SkipExternal: true}).Check(context.Background(), site)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusUnchecked, results[0].Status)
}

func TestNativeChecker_SchemeHandling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	host := strings.TrimPrefix(srv.URL, "http://")

	site := writeSite(t, map[string]string{
		"index.html": `<a href="//` + host + `/ok">relative</a>` +
			`<a href="ftp://ftp.example.org/pub/file.txt">ftp</a>` +
			`<a href="` + srv.URL + `/ok">plain</a>`,
	})

	results, err := NewNativeChecker(NativeOptions{BaseURL: "http://docs.example.com/"}).
		WithHTTPClient(srv.Client()).Check(context.Background(), site)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byURI := map[string]Status{}
	for _, r := range results {
		byURI[r.URI] = r.Status
	}
	assert.Equal(t, StatusWorking, byURI["//"+host+"/ok"])
	assert.Equal(t, StatusUnchecked, byURI["ftp://ftp.example.org/pub/file.txt"])
	assert.Equal(t, StatusWorking, byURI[srv.URL+"/ok"])
	assert.Empty(t, BrokenLinks(results))
}

func TestNativeChecker_UsesCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	site := writeSite(t, map[string]string{"index.html": `<a href="` + srv.URL + `/cached">x</a>`})
	cache := NewMemoryCache(time.Hour)
	checker := NewNativeChecker(NativeOptions{Cache: cache}).WithHTTPClient(srv.Client())

	_, err := checker.Check(context.Background(), site)
	require.NoError(t, err)
	_, err = checker.Check(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
