package websearch

import (
	"context"
	"encoding/json"

	"github.com/arcburst/deepresearch/internal/cache"
)

// CachingSearcher fronts an inner Searcher with a result cache keyed by
// query+num, so a repeated query within the cache TTL never re-hits the
// provider (spec §2 "Cache C2 fronts C3/C4/C5", §4.C2).
type CachingSearcher struct {
	Inner Searcher
	Cache *cache.Cache
}

// Discover implements Searcher.
func (c *CachingSearcher) Discover(ctx context.Context, query string, num int) ([]Hit, error) {
	if c.Cache == nil {
		return c.Inner.Discover(ctx, query, num)
	}

	key := cache.Key("search", cache.KV{Key: "query", Value: query}, cache.KV{Key: "num", Value: num})
	raw, err := c.Cache.Fetch(ctx, key, func() (string, error) {
		hits, err := c.Inner.Discover(ctx, query, num)
		if err != nil {
			return "", err
		}
		body, err := json.Marshal(hits)
		if err != nil {
			return "", err
		}
		return string(body), nil
	})
	if err != nil {
		return nil, err
	}

	var hits []Hit
	if err := json.Unmarshal([]byte(raw), &hits); err != nil {
		return c.Inner.Discover(ctx, query, num)
	}
	return hits, nil
}
