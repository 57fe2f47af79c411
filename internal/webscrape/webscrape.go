// Package webscrape is the scrape adapter capability, adapted from the
// teacher's tools/web_fetch/chromedp package with the retry/backoff
// loop lifted from internal/agent/core/httpclient.go.
package webscrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/semaphore"

	"github.com/arcburst/deepresearch/internal/cache"
	"github.com/arcburst/deepresearch/internal/urlnorm"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 8 * time.Second

	// maxConcurrentFetches bounds how many headless-browser tabs a single
	// FetchAll call may hold open at once, independent of how many URLs a
	// search step fans out to.
	maxConcurrentFetches = 4
)

// PageResult is one URL's scrape outcome (spec §4.C4).
type PageResult struct {
	URL         string
	Success     bool
	Text        string
	Title       string
	Description string
	Error       string
}

// BulkResult is the bulk-scrape return shape: per-URL results plus an
// overall Success flag that is false iff any URL failed.
type BulkResult struct {
	Results []PageResult
	Success bool
}

// Scraper fetches and extracts readable text from URLs.
type Scraper struct {
	MaxRetries  int
	PageTimeout time.Duration
	MaxChars    int

	// Cache fronts fetchWithRetry by URL+MaxChars (spec §4.C4 "(d) cached
	// by URL+options"). Nil disables caching.
	Cache *cache.Cache
}

// New builds a Scraper with spec defaults (maxRetries=3, spec §4.C4).
func New() *Scraper {
	return &Scraper{MaxRetries: 3, PageTimeout: 20 * time.Second, MaxChars: 20000}
}

// FetchAll scrapes every URL concurrently, honoring ctx cancellation, and
// returns a BulkResult in input order. Partial failures never abort the
// bulk call (spec §4.C4).
func (s *Scraper) FetchAll(ctx context.Context, urls []string) BulkResult {
	results := make([]PageResult, len(urls))
	if len(urls) == 0 {
		return BulkResult{Success: true}
	}

	sem := semaphore.NewWeighted(maxConcurrentFetches)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = PageResult{URL: u, Error: err.Error()}
				return
			}
			defer sem.Release(1)
			results[i] = s.fetchWithRetry(ctx, u)
		}(i, u)
	}
	wg.Wait()

	success := true
	for _, r := range results {
		if !r.Success {
			success = false
			break
		}
	}
	return BulkResult{Results: results, Success: success}
}

// fetchWithRetry serves a successful scrape of rawURL from Cache when
// present, falling back to fetchWithRetryUncached on a miss and caching
// its result (spec §4.C4 "(d) cached by URL+options"). Failures are never
// cached, so a transient outage doesn't poison the cache for the TTL.
func (s *Scraper) fetchWithRetry(ctx context.Context, rawURL string) PageResult {
	canonical := urlnorm.Canonicalize(rawURL)
	if s.Cache == nil {
		return s.fetchWithRetryUncached(ctx, canonical)
	}

	key := cache.Key("scrape", cache.KV{Key: "url", Value: canonical}, cache.KV{Key: "maxChars", Value: s.MaxChars})
	raw, err := s.Cache.Fetch(ctx, key, func() (string, error) {
		result := s.fetchWithRetryUncached(ctx, canonical)
		if !result.Success {
			return "", errors.New(result.Error)
		}
		body, merr := json.Marshal(result)
		return string(body), merr
	})
	if err != nil {
		return PageResult{URL: canonical, Success: false, Error: err.Error()}
	}
	var result PageResult
	if uerr := json.Unmarshal([]byte(raw), &result); uerr != nil {
		return s.fetchWithRetryUncached(ctx, canonical)
	}
	return result
}

// fetchWithRetryUncached retries with exponential backoff: base 500ms,
// doubling, capped at 8s, up to MaxRetries additional attempts (spec
// §4.C4, §8 law "bounded retries").
func (s *Scraper) fetchWithRetryUncached(ctx context.Context, canonical string) PageResult {
	var lastErr error

	attempts := s.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return PageResult{URL: canonical, Success: false, Error: ctx.Err().Error()}
		}
		title, text, err := s.fetchOnce(ctx, canonical)
		if err == nil {
			return PageResult{URL: canonical, Success: true, Text: text, Title: title}
		}
		lastErr = err

		if attempt < attempts-1 {
			wait := backoffBase * time.Duration(1<<uint(attempt))
			if wait > backoffCap {
				wait = backoffCap
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return PageResult{URL: canonical, Success: false, Error: ctx.Err().Error()}
			}
		}
	}
	return PageResult{URL: canonical, Success: false, Error: lastErr.Error()}
}

func (s *Scraper) fetchOnce(ctx context.Context, rawURL string) (title, text string, err error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", "", errors.New("empty url")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.PageTimeout)
	defer cancel()

	html, err := s.fetchHTML(fetchCtx, rawURL)
	if err != nil {
		return "", "", err
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL))
	if err != nil {
		return "", "", err
	}

	content := strings.TrimSpace(article.TextContent)
	if s.MaxChars > 0 && len(content) > s.MaxChars {
		content = content[:s.MaxChars]
	}
	return strings.TrimSpace(article.Title), content, nil
}

func (s *Scraper) fetchHTML(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("DeepResearchAgent/1.0"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
