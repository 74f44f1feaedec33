// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"

	"github.com/jeranaias/pocketchat/internal/model"
)

// Errors returned by store implementations.
var (
	// ErrNotFound indicates the requested conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
)

// Store persists conversations. The orchestration layer calls Load once at
// startup and Save after every mutation it performs.
type Store interface {
	// Load returns all saved conversations, most recently updated first.
	Load() ([]*model.Conversation, error)

	// Save persists the given conversations, replacing the stored set.
	// Pending placeholder messages are stripped before writing.
	Save(conversations []*model.Conversation) error

	// Delete removes one conversation. Deletion is a store-level
	// operation; nothing in the core deletes conversations.
	Delete(id string) error

	// Close releases any underlying resources.
	Close() error
}

// Open constructs the backend selected by name: "json" or "sqlite".
func Open(backend, dir string, maxConversations int) (Store, error) {
	switch backend {
	case "json":
		return NewJSONStore(dir, maxConversations)
	case "sqlite":
		return NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// stripPending returns a deep copy of the conversation without any pending
// placeholder. Placeholders are transient UI state and must never be
// stored. UpdatedAt is preserved; stripping is not a mutation of the
// conversation, only of what gets written.
func stripPending(conv *model.Conversation) *model.Conversation {
	clone := conv.Clone()
	kept := clone.Messages[:0]
	for _, msg := range clone.Messages {
		if !msg.IsPending {
			kept = append(kept, msg)
		}
	}
	clone.Messages = kept
	return clone
}
