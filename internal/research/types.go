package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/arcburst/deepresearch/internal/urlnorm"
)

// SearchHit is one ranked result returned by the search adapter.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Date    string `json:"date,omitempty"`
}

// SearchResult is a SearchHit enriched with scraped content and its summary.
// Summary is an LLM synthesis only if ScrapedContent was non-empty at
// summarization time; otherwise (or on LLM failure) it holds the snippet.
type SearchResult struct {
	Date           string `json:"date,omitempty"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Snippet        string `json:"snippet"`
	ScrapedContent string `json:"scrapedContent,omitempty"`
	Summary        string `json:"summary,omitempty"`
}

// SearchHistoryEntry aggregates one query's settled results.
type SearchHistoryEntry struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// ActionType distinguishes the evaluator's sum-typed decision without
// resorting to nullable fields or sentinel strings.
type ActionType int

const (
	ActionContinue ActionType = iota
	ActionAnswer
)

func (t ActionType) String() string {
	switch t {
	case ActionContinue:
		return "continue"
	case ActionAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the enum the way the evaluator schema expects it.
func (t ActionType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// Action is the evaluator's decision record: Continue{feedback} or
// Answer{feedback}. Feedback is mandatory for both variants.
type Action struct {
	Type      ActionType `json:"type"`
	Title     string     `json:"title"`
	Reasoning string     `json:"reasoning"`
	Feedback  string     `json:"feedback"`
}

// Validate rejects an action missing any mandatory field (spec §4.C7).
func (a Action) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return &PlannerError{Stage: "evaluator", Reason: "missing title"}
	}
	if strings.TrimSpace(a.Reasoning) == "" {
		return &PlannerError{Stage: "evaluator", Reason: "missing reasoning"}
	}
	if strings.TrimSpace(a.Feedback) == "" {
		return &PlannerError{Stage: "evaluator", Reason: "missing feedback"}
	}
	return nil
}

// QueryPlan is the rewriter's output: a short plan and 3-5 search queries.
type QueryPlan struct {
	Plan    string   `json:"plan"`
	Queries []string `json:"queries"`
}

// Validate enforces the [3,5] query-count constraint (spec §4.C6).
func (p QueryPlan) Validate() error {
	if len(p.Queries) < 3 || len(p.Queries) > 5 {
		return &PlannerError{Stage: "rewriter", Reason: fmt.Sprintf("expected 3-5 queries, got %d", len(p.Queries))}
	}
	for _, q := range p.Queries {
		if strings.TrimSpace(q) == "" {
			return &PlannerError{Stage: "rewriter", Reason: "empty query in plan"}
		}
	}
	return nil
}

// MessageRole enumerates the allowed roles of a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessagePart is one typed chunk of a Message's content (text, citation, …).
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one turn in the conversation fed into SystemContext.
type Message struct {
	ID      string        `json:"id"`
	Role    MessageRole   `json:"role"`
	Content string        `json:"content"`
	Parts   []MessagePart `json:"parts,omitempty"`
}

// CanonicalizeURL lowercases scheme+host and normalizes the trailing slash,
// per spec §3's SearchHit invariant.
func CanonicalizeURL(raw string) string { return urlnorm.Canonicalize(raw) }

// Favicon derives a favicon URL from a canonical URL's hostname, used by
// SourcesFound (spec §4.C11 step 6).
func Favicon(rawURL string) string { return urlnorm.Favicon(rawURL) }

// parseResultDate is a best-effort parse of a SearchHit's free-form date
// field, used only for display ordering; an unparsable date sorts last.
func parseResultDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
