package linkcheck

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// Link is a link extracted from an HTML page.
type Link struct {
	URL       string
	Tag       string
	Attribute string
	Line      int
}

// linkAttrs lists the attributes that reference other resources, per element.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"iframe": "src",
	"video":  "src",
	"audio":  "src",
	"source": "src",
}

// ExtractLinks extracts all resource references from an HTML file.
func ExtractLinks(htmlPath string) ([]Link, error) {
	data, err := os.ReadFile(filepath.Clean(htmlPath))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read HTML file").WithContext("html_path", htmlPath).Build()
	}
	return ExtractLinksFromReader(bytes.NewReader(data))
}

// ExtractLinksFromReader tokenizes HTML and returns the links it references, with source line numbers.
func ExtractLinksFromReader(r io.Reader) ([]Link, error) {
	z := html.NewTokenizer(r)
	line := 1
	var links []Link
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return links, nil
			}
			return links, errors.WrapError(z.Err(), errors.CategoryValidation, "failed to parse HTML").Build()
		case html.StartTagToken, html.SelfClosingTagToken:
			tokenLine := line
			raw := z.Raw()
			line += bytes.Count(raw, []byte{'\n'})
			tok := z.Token()
			attr, ok := linkAttrs[tok.Data]
			if !ok {
				continue
			}
			for _, a := range tok.Attr {
				if a.Key == attr && strings.TrimSpace(a.Val) != "" {
					links = append(links, Link{URL: strings.TrimSpace(a.Val), Tag: tok.Data, Attribute: attr, Line: tokenLine})
				}
			}
		default:
			line += bytes.Count(z.Raw(), []byte{'\n'})
		}
	}
}

// ShouldVerify reports whether a link points at something checkable.
func ShouldVerify(link Link) bool {
	u := link.URL
	if u == "" || strings.HasPrefix(u, "#") {
		return false
	}
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(strings.ToLower(u), prefix) {
			return false
		}
	}
	return true
}

// IsInternal reports whether link targets the built site itself. base may be nil.
func IsInternal(link string, base *url.URL) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	return base != nil && base.Host != "" && strings.EqualFold(u.Host, base.Host)
}
