// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/jeranaias/veil/internal/sanitize"
)

// =============================================================================
// TYPES
// =============================================================================

// Conversation is a chat thread.
type Conversation struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	// LastMessage is the body of the newest message, empty when there is none.
	LastMessage string
}

// Message is one message in a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// Thread is a conversation with its messages, used to seed a store.
type Thread struct {
	Title    string
	Messages []Message
}

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("content store is closed")
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`

// pragmas applied to file-backed stores. secure_delete zeroes freed pages
// and the rollback journal keeps everything in one file plus a transient
// -journal, which the wipe removes as well.
var pragmas = []string{
	"PRAGMA journal_mode=DELETE",
	"PRAGMA secure_delete=ON",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// =============================================================================
// STORE
// =============================================================================

// Store is one content domain backed by SQLite.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle. The store cannot secure delete its
// file, so Wipe falls back to deleting all rows.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open SQLite: %w", err)
	}
	// One connection keeps pragmas in effect for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.db = db
	return nil
}

// Path returns the database file, or "" for wrapped handles.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation starts a new conversation.
func (s *Store) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return Conversation{}, ErrClosed
	}

	now := s.now().UTC()
	c := Conversation{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, now.UnixNano(), now.UnixNano()); err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return c, nil
}

// AddMessage appends a message and bumps the conversation's updated time.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, text string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return Message{}, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := addMessage(ctx, tx, s.now().UTC(), conversationID, role, text)
	if err != nil {
		return Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("failed to commit message: %w", err)
	}
	return m, nil
}

func addMessage(ctx context.Context, tx *sql.Tx, now time.Time, conversationID, role, text string) (Message, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now.UnixNano(), conversationID)
	if err != nil {
		return Message{}, fmt.Errorf("failed to update conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Message{}, fmt.Errorf("failed to update conversation: %w", err)
	} else if n == 0 {
		return Message{}, ErrNotFound
	}

	m := Message{ID: uuid.NewString(), ConversationID: conversationID, Role: role, Content: text, CreatedAt: now}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, now.UnixNano()); err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

// Conversations lists conversations, most recently updated first.
func (s *Store) Conversations(ctx context.Context) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at, COUNT(m.id),
			COALESCE((SELECT l.content FROM messages l WHERE l.conversation_id = c.id
				ORDER BY l.created_at DESC, l.rowid DESC LIMIT 1), '')
		FROM conversations c LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id ORDER BY c.updated_at DESC, c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.Title, &created, &updated, &c.MessageCount, &c.LastMessage); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		c.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Messages returns a conversation's messages in order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM messages
		WHERE conversation_id = ? ORDER BY created_at, rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m := Message{ConversationID: conversationID}
		var created int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Count returns the number of conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n, nil
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// Replace atomically swaps all content for threads.
func (s *Store) Replace(ctx context.Context, threads []Thread) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := truncate(ctx, tx); err != nil {
		return err
	}

	// Space seed timestamps so ordering is stable and looks organic.
	base := s.now().UTC().Add(-time.Duration(len(threads)) * time.Hour)
	for i, th := range threads {
		at := base.Add(time.Duration(i) * time.Hour)
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			id, th.Title, at.UnixNano(), at.UnixNano()); err != nil {
			return fmt.Errorf("failed to seed conversation: %w", err)
		}
		for j, m := range th.Messages {
			if _, err := addMessage(ctx, tx, at.Add(time.Duration(j)*time.Minute), id, m.Role, m.Content); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Truncate deletes every conversation and message.
func (s *Store) Truncate(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := truncate(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func truncate(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	return nil
}

// Wipe destroys all content. A file-backed store is closed, its files are
// overwritten and removed, and an empty database is opened in their place.
//
// SECURITY: No log line, no journal entry, no trash.
func (s *Store) Wipe(ctx context.Context) error {
	if s.path == "" {
		return s.Truncate(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	err := sanitize.SecureDeleteFiles(s.path, s.path+"-journal", s.path+"-wal", s.path+"-shm")
	if openErr := s.open(); openErr != nil && err == nil {
		err = openErr
	}
	return err
}
