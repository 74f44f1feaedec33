// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/pocketchat/internal/model"
)

// schema creates the conversation tables. Messages are ordered by an
// explicit position column so replay never depends on rowid.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	id              TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	PRIMARY KEY (conversation_id, position)
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated
	ON conversations(updated_at DESC);
`

// SQLiteStore persists all conversations in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database under dir. An empty dir
// defaults to ~/.pocketchat.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".pocketchat")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "conversations.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save persists the given conversations, replacing the stored set. The
// whole replacement runs in one transaction.
func (s *SQLiteStore) Save(conversations []*model.Conversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return err
	}

	convStmt, err := tx.Prepare(
		"INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer convStmt.Close()

	msgStmt, err := tx.Prepare(
		"INSERT INTO messages (conversation_id, position, id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer msgStmt.Close()

	for _, conv := range conversations {
		conv = stripPending(conv)

		_, err := convStmt.Exec(conv.ID, conv.Title,
			conv.CreatedAt.Format(time.RFC3339Nano),
			conv.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return err
		}

		for i, msg := range conv.Messages {
			_, err := msgStmt.Exec(conv.ID, i, msg.ID, string(msg.Role),
				msg.Content, msg.CreatedAt.Format(time.RFC3339Nano))
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// Load returns all saved conversations, most recently updated first.
func (s *SQLiteStore) Load() ([]*model.Conversation, error) {
	rows, err := s.db.Query(
		"SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*model.Conversation
	for rows.Next() {
		var conv model.Conversation
		var created, updated string
		if err := rows.Scan(&conv.ID, &conv.Title, &created, &updated); err != nil {
			return nil, err
		}
		conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, conv := range conversations {
		if err := s.loadMessages(conv); err != nil {
			return nil, err
		}
	}
	if conversations == nil {
		conversations = []*model.Conversation{}
	}
	return conversations, nil
}

// loadMessages fills one conversation's messages in position order.
func (s *SQLiteStore) loadMessages(conv *model.Conversation) error {
	rows, err := s.db.Query(
		"SELECT id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY position",
		conv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.Message
		var role, created string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &created); err != nil {
			return err
		}
		msg.Role = model.Role(role)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		conv.Messages = append(conv.Messages, &msg)
	}
	return rows.Err()
}

// Delete removes one conversation and its messages.
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
