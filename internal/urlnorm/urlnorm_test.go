package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeLowercasesSchemeAndHost(t *testing.T) {
	require.Equal(t, "https://example.com/path", Canonicalize("HTTPS://Example.COM/path"))
}

func TestCanonicalizeStripsTrailingSlashExceptRoot(t *testing.T) {
	require.Equal(t, "https://example.com/path", Canonicalize("https://example.com/path/"))
	require.Equal(t, "https://example.com/", Canonicalize("https://example.com/"))
}

func TestCanonicalizeStripsFragment(t *testing.T) {
	require.Equal(t, "https://example.com/path", Canonicalize("https://example.com/path#section"))
}

func TestCanonicalizeDedupesEquivalentURLs(t *testing.T) {
	a := Canonicalize("HTTPS://Example.com/path/")
	b := Canonicalize("https://example.com/path#frag")
	require.Equal(t, a, b)
}

func TestFaviconUsesHost(t *testing.T) {
	require.Equal(t, "https://www.google.com/s2/favicons?domain=example.com", Favicon("https://example.com/path"))
}

func TestFaviconEmptyOnUnparsableURL(t *testing.T) {
	require.Equal(t, "", Favicon(""))
}
