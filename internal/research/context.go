package research

import (
	"fmt"
	"strings"
)

// SystemContext is the per-request, single-writer state object read by the
// rewriter/evaluator/answerer prompt builders (spec §3, §4.C10). It is
// owned by the loop driver for the lifetime of one request and must never
// be shared across requests.
type SystemContext struct {
	locationContext string
	messages        []Message
	searchHistory   []SearchHistoryEntry
	feedback        string
	step            int

	seenURLs map[string]struct{}
}

// NewSystemContext builds a fresh context for one loop, owned exclusively
// by the caller (spec §3 invariant vi).
func NewSystemContext(locationContext string, messages []Message) *SystemContext {
	return &SystemContext{
		locationContext: locationContext,
		messages:        messages,
		seenURLs:        make(map[string]struct{}),
	}
}

// messageHistoryText renders the conversation for prompt inclusion.
func (c *SystemContext) messageHistoryText() string {
	var b strings.Builder
	for _, m := range c.messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// searchHistoryText renders accumulated search history using the format
// named in spec §4.C10: one heading per query, one subsection per result.
func (c *SystemContext) searchHistoryText() string {
	var b strings.Builder
	for _, entry := range c.searchHistory {
		fmt.Fprintf(&b, "## Query: %s\n", entry.Query)
		for _, r := range entry.Results {
			content := r.Summary
			if content == "" {
				content = r.ScrapedContent
			}
			fmt.Fprintf(&b, "### %s - %s %s\n%s\n<content_summary>%s</content_summary>\n", r.Date, r.Title, r.URL, r.Snippet, content)
		}
	}
	return b.String()
}

func (c *SystemContext) locationHints() string { return c.locationContext }

func (c *SystemContext) currentStep() int { return c.step }

func (c *SystemContext) lastFeedback() string { return c.feedback }

// recordSearch appends a settled entry, deduplicating URLs already seen in
// this loop (spec §3 invariant iv, §4.C11 step 6: only the first occurrence
// of a canonical URL across the whole searchHistory is kept).
func (c *SystemContext) recordSearch(entry SearchHistoryEntry) SearchHistoryEntry {
	deduped := SearchHistoryEntry{Query: entry.Query}
	for _, r := range entry.Results {
		key := CanonicalizeURL(r.URL)
		if _, seen := c.seenURLs[key]; seen {
			continue
		}
		c.seenURLs[key] = struct{}{}
		deduped.Results = append(deduped.Results, r)
	}
	c.searchHistory = append(c.searchHistory, deduped)
	return deduped
}

// recordFeedback overwrites the last feedback, never appends (invariant v).
func (c *SystemContext) recordFeedback(text string) { c.feedback = text }

// incrementStep advances the step counter. Callers must keep step <= maxSteps
// (invariant i); the loop driver enforces the cap before calling this.
func (c *SystemContext) incrementStep() { c.step++ }
