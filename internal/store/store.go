// Package store is the chat/message persistence capability (spec §3
// "External persisted state"): a Postgres-backed store of Chat and
// Message rows. The research core treats persistence as an opaque
// capability it never imports, so this package depends on
// internal/research only for the shared Message/MessageRole/MessagePart
// types.
// Grounded on the teacher's internal/runtime.BuildPostgresDSN and its
// lib/pq usage throughout internal/server.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/arcburst/deepresearch/internal/research"
)

// Chat is one persisted conversation (spec §3).
type Chat struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredMessage is one persisted turn of a Chat.
type StoredMessage struct {
	ID        string
	ChatID    string
	Role      research.MessageRole
	Content   string
	Parts     []research.MessagePart
	CreatedAt time.Time
}

// Store is the Postgres-backed chat/message adapter.
type Store struct {
	DB *sql.DB
}

// Open connects to dsn and verifies the connection with a ping.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// CreateChat inserts a new chat row owned by userID.
func (s *Store) CreateChat(ctx context.Context, id, userID, title string) (Chat, error) {
	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		id, userID, title, now)
	if err != nil {
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return Chat{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetChat fetches a chat by id, scoped to userID (spec §6's 404-if-not-owned rule).
func (s *Store) GetChat(ctx context.Context, id, userID string) (Chat, error) {
	var c Chat
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

// ListChats returns every chat owned by userID, most recently updated first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChat removes a chat and its messages, scoped to userID. It reports
// whether a row was actually deleted (spec §6's 404-if-not-owned rule).
func (s *Store) DeleteChat(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM chats WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete chat rows affected: %w", err)
	}
	return n > 0, nil
}

// AppendMessage persists one turn of a chat and bumps the chat's updated_at.
func (s *Store) AppendMessage(ctx context.Context, m StoredMessage) error {
	partsJSON, err := json.Marshal(m.Parts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, parts, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ChatID, string(m.Role), m.Content, partsJSON, now)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE chats SET updated_at = $1 WHERE id = $2`, now, m.ChatID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// ListMessages returns a chat's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]StoredMessage, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, chat_id, role, content, parts, created_at FROM messages WHERE chat_id = $1 ORDER BY created_at ASC`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role string
		var partsJSON []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &partsJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = research.MessageRole(role)
		if len(partsJSON) > 0 {
			if err := json.Unmarshal(partsJSON, &m.Parts); err != nil {
				return nil, fmt.Errorf("unmarshal parts: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ToMessages converts persisted rows into the research package's Message
// type, for seeding a SystemContext from prior chat history.
func ToMessages(rows []StoredMessage) []research.Message {
	out := make([]research.Message, len(rows))
	for i, r := range rows {
		out[i] = research.Message{ID: r.ID, Role: r.Role, Content: r.Content, Parts: r.Parts}
	}
	return out
}
