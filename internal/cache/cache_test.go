package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestKeySameArgsSameKey(t *testing.T) {
	a := Key("search", KV{Key: "query", Value: "golang"}, KV{Key: "num", Value: 3})
	b := Key("search", KV{Key: "query", Value: "golang"}, KV{Key: "num", Value: 3})
	require.Equal(t, a, b)
}

func TestKeyDifferentArgsDifferentKey(t *testing.T) {
	a := Key("search", KV{Key: "query", Value: "golang"}, KV{Key: "num", Value: 3})
	b := Key("search", KV{Key: "query", Value: "rust"}, KV{Key: "num", Value: 3})
	require.NotEqual(t, a, b)
}

func TestKeyOrderSensitive(t *testing.T) {
	a := Key("k", KV{Key: "a", Value: 1}, KV{Key: "b", Value: 2})
	b := Key("k", KV{Key: "b", Value: 2}, KV{Key: "a", Value: 1})
	require.NotEqual(t, a, b)
}

func TestKeyDifferentPrefixDifferentKey(t *testing.T) {
	a := Key("search", KV{Key: "q", Value: "x"})
	b := Key("scrape", KV{Key: "q", Value: "x"})
	require.NotEqual(t, a, b)
}

// Fetch against a Cache with no backing client (fail-open: spec §4.C2)
// always runs compute, never panics on a nil client.
func TestFetchWithNoClientAlwaysComputes(t *testing.T) {
	c := New(nil, 0, testLogger)
	calls := 0
	val, err := c.Fetch(context.Background(), "k", func() (string, error) {
		calls++
		return "computed", nil
	})
	require.NoError(t, err)
	require.Equal(t, "computed", val)
	require.Equal(t, 1, calls)

	val, err = c.Fetch(context.Background(), "k", func() (string, error) {
		calls++
		return "computed-again", nil
	})
	require.NoError(t, err)
	require.Equal(t, "computed-again", val)
	require.Equal(t, 2, calls) // no backing store, so every call recomputes
}

// A compute failure is never written through and is returned verbatim, so
// a caller's cache-poisoning-on-fallback bug can't hide behind this layer.
func TestFetchPropagatesComputeError(t *testing.T) {
	c := New(nil, 0, testLogger)
	wantErr := errors.New("boom")

	_, err := c.Fetch(context.Background(), "k", func() (string, error) {
		return "", wantErr
	})

	require.ErrorIs(t, err, wantErr)
}
