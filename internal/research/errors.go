package research

import (
	"errors"
	"fmt"
)

// errEmptySummary marks an LLM call that returned no usable text, treated
// the same as a Generate error by the summarizer's fallback path.
var errEmptySummary = errors.New("summarizer: empty LLM response")

// AdmissionError describes a quota/window deny (spec §7.1). The rate
// limiter reports denies as a ratelimit.Decision, which the HTTP edge maps
// to 429 with the X-Rate-Limit-* headers; no code constructs this type.
type AdmissionError struct {
	Reason       string
	ResetTime    int64 // unix seconds
	Remaining    int
	Limit        int
	RetryAfterMs int64
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission denied: %s", e.Reason)
}

// AdapterError is a search/scrape/summarize failure (spec §7.3). It is
// contained at the per-item level during fan-out and is never fatal alone.
type AdapterError struct {
	Adapter   string // "search" | "scrape" | "summarize"
	Retryable bool
	Cause     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter error (retryable=%v): %v", e.Adapter, e.Retryable, e.Cause)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// PlannerError is a rewriter/evaluator schema violation or empty response
// (spec §7.4). Callers retry once, then fall back per spec §4.C11(a).
type PlannerError struct {
	Stage  string // "rewriter" | "evaluator" | "guardrail"
	Reason string
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

// StreamError signals client disconnect or request timeout (spec §7.5).
// The driver propagates cancellation and skips persistence side effects.
type StreamError struct {
	Reason string // "cancelled" | "timeout" | "write failed"
	Cause  error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("stream error: %s", e.Reason)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// StorageError wraps a key-value or persistence failure (spec §7.6). No
// code constructs it: the cache and rate limiter fail open on the raw
// Redis error, and onFinish persistence failures are logged as returned.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }
