// Package stream is the streaming protocol capability (spec §4.C12): it
// converts research.StreamEvent values into framed wire records over a
// chunked HTTP response, grounded on the teacher's
// internal/server/runs.go streamRuns handler (text/event-stream +
// http.Flusher).
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/arcburst/deepresearch/internal/research"
)

// encodeEvent renders a StreamEvent as {"type": "...", ...payload fields}.
func encodeEvent(e research.StreamEvent) ([]byte, error) {
	var payload interface{}
	switch e.Kind {
	case research.EventNewChatCreated:
		payload = e.NewChatCreated
	case research.EventPlanning:
		payload = e.Planning
	case research.EventQueriesGenerated:
		payload = e.QueriesGenerated
	case research.EventSearchUpdate:
		payload = e.SearchUpdate
	case research.EventSourcesFound:
		payload = e.SourcesFound
	case research.EventNewAction:
		payload = e.NewAction
	case research.EventEvaluatorFeedback:
		payload = e.EvaluatorFeedback
	case research.EventActionUpdate:
		payload = e.ActionUpdate
	case research.EventTextDelta:
		payload = e.TextDelta
	case research.EventError:
		payload = e.Error
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	out := map[string]interface{}{"type": e.Kind}
	for k, v := range merged {
		out[k] = v
	}
	return json.Marshal(out)
}

// SSEWriter is a research.Sink that writes each event as an SSE frame
// (`event: <kind>\ndata: <json>\n\n`) and flushes immediately, matching
// runs.go's sendSnapshot closure.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	writeErr error
}

// NewSSEWriter sets the SSE response headers and returns a writer, or an
// error if the ResponseWriter doesn't support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported: response writer is not a flusher")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Emit implements research.Sink.
func (s *SSEWriter) Emit(e research.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return
	}

	data, err := encodeEvent(e)
	if err != nil {
		s.writeErr = err
		return
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", e.Kind); err != nil {
		s.writeErr = err
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.writeErr = err
		return
	}
	s.flusher.Flush()
}

// Err returns the first write error encountered, if any. Checked by the
// chat handler after the driver returns, since a write failure mid-stream
// has no way to signal Driver.Run directly; the caller maps it to a
// research.StreamError for logging (spec §7.5).
func (s *SSEWriter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}
