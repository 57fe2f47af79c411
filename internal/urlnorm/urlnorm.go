// Package urlnorm canonicalizes URLs for deduplication and derives
// favicon URLs. It is a leaf package with no dependency on internal/research
// so that the search, scrape, and research packages can all depend on it
// without an import cycle.
package urlnorm

import (
	"fmt"
	"net/url"
	"strings"
)

// Canonicalize lowercases scheme+host and normalizes the trailing slash
// (spec §3's SearchHit invariant).
func Canonicalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	u.Fragment = ""
	return u.String()
}

// Favicon derives a favicon URL from a canonical URL's hostname, used by
// SourcesFound (spec §4.C11 step 6).
func Favicon(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s", u.Host)
}
