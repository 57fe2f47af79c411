package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcburst/deepresearch/internal/research"
)

// envelope is the persisted wire shape of one mirrored event, grounded on
// the teacher's internal/queue/streams envelope (EventID/OccurredAt plus a
// raw payload field).
type envelope struct {
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Raw        json.RawMessage `json:"raw"`
}

// ResumablePublisher mirrors loop events into a Redis Stream keyed by chat
// id, so a reconnecting client can replay the producer's output (spec
// §4.C12's optional resumable-stream layer; §3's stream-resumption
// records). Grounded on internal/queue/streams/publisher.go's XAdd usage.
type ResumablePublisher struct {
	client  *redis.Client
	maxLen  int64
}

// NewResumablePublisher builds a publisher over an existing Redis client.
func NewResumablePublisher(client *redis.Client) *ResumablePublisher {
	return &ResumablePublisher{client: client, maxLen: 1000}
}

func streamKey(chatID string) string { return "research:stream:" + chatID }

// MirrorSink wraps an underlying Sink and additionally publishes every
// event to the chat's Redis Stream, so the resumable layer and the live
// response draw from the same producer (spec §4.C12).
type MirrorSink struct {
	Inner     research.Sink
	Publisher *ResumablePublisher
	ChatID    string
	ctx       context.Context
}

// NewMirrorSink builds a MirrorSink. ctx is used for the Redis writes,
// independent of any single event's caller context, so a slow mirror
// write never blocks on a canceled request context.
func NewMirrorSink(ctx context.Context, inner research.Sink, publisher *ResumablePublisher, chatID string) *MirrorSink {
	return &MirrorSink{Inner: inner, Publisher: publisher, ChatID: chatID, ctx: ctx}
}

func (m *MirrorSink) Emit(e research.StreamEvent) {
	m.Inner.Emit(e)
	if m.Publisher == nil {
		return
	}
	if err := m.Publisher.Publish(m.ctx, m.ChatID, e); err != nil {
		// Resumption is out of the hot path (spec §4.C12); a mirror
		// failure must never affect the live response.
		return
	}
}

// Publish appends one event to the chat's stream.
func (p *ResumablePublisher) Publish(ctx context.Context, chatID string, e research.StreamEvent) error {
	raw, err := encodeEvent(e)
	if err != nil {
		return err
	}
	env := envelope{EventID: fmt.Sprintf("%s-%d", chatID, time.Now().UnixNano()), OccurredAt: time.Now().UTC(), Raw: raw}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(chatID),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"envelope": payload},
	}).Err()
}

// Replay reads every event recorded so far for chatID, in order, for a
// resuming client (the GET /chat resume endpoint, spec §6).
func (p *ResumablePublisher) Replay(ctx context.Context, chatID string) ([]json.RawMessage, error) {
	entries, err := p.client.XRange(ctx, streamKey(chatID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("replay stream: %w", err)
	}

	out := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["envelope"].(string)
		if !ok {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			continue
		}
		out = append(out, env.Raw)
	}
	return out, nil
}

// HasActiveStream reports whether chatID has any recorded stream entries,
// used by GET /chat to decide between replay and 404 (spec §6).
func (p *ResumablePublisher) HasActiveStream(ctx context.Context, chatID string) (bool, error) {
	n, err := p.client.XLen(ctx, streamKey(chatID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
