// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/util"
)

// JSONStore persists each conversation as one JSON file under a base
// directory.
type JSONStore struct {
	// BaseDir is the directory holding one <id>.json per conversation.
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited).
	// When exceeded, the oldest conversations are dropped.
	MaxConversations int
}

// NewJSONStore creates a JSON file store rooted at dir. An empty dir
// defaults to ~/.pocketchat/conversations.
func NewJSONStore(dir string, maxConversations int) (*JSONStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".pocketchat", "conversations")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &JSONStore{BaseDir: dir, MaxConversations: maxConversations}, nil
}

// Save persists the given conversations, replacing the stored set. Files
// for conversations no longer in the set are removed.
func (s *JSONStore) Save(conversations []*model.Conversation) error {
	keep := make(map[string]bool, len(conversations))

	for _, conv := range conversations {
		conv = stripPending(conv)
		keep[conv.ID] = true

		data, err := json.MarshalIndent(conv, "", "  ")
		if err != nil {
			return err
		}
		// Atomic write with fsync: a crash leaves either the old file
		// or the complete new one.
		if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0644); err != nil {
			return err
		}
	}

	// Drop files for conversations removed from the set.
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if id := strings.TrimSuffix(name, ".json"); !keep[id] {
			os.Remove(filepath.Join(s.BaseDir, name))
		}
	}

	s.enforceLimit()
	return nil
}

// Load returns all saved conversations, most recently updated first.
// Corrupted files are skipped rather than failing the whole load.
func (s *JSONStore) Load() ([]*model.Conversation, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Conversation{}, nil
		}
		return nil, err
	}

	conversations := make([]*model.Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.BaseDir, entry.Name()))
		if err != nil {
			continue
		}
		var conv model.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}
		conversations = append(conversations, &conv)
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	return conversations, nil
}

// Delete removes one conversation file.
func (s *JSONStore) Delete(id string) error {
	err := os.Remove(s.filePath(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// Close implements Store. The JSON backend holds no resources.
func (s *JSONStore) Close() error {
	return nil
}

// filePath returns the path for a conversation ID.
func (s *JSONStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// enforceLimit removes the oldest conversations when over the limit.
func (s *JSONStore) enforceLimit() {
	if s.MaxConversations <= 0 {
		return
	}
	conversations, err := s.Load()
	if err != nil || len(conversations) <= s.MaxConversations {
		return
	}
	for _, conv := range conversations[s.MaxConversations:] {
		os.Remove(s.filePath(conv.ID))
	}
}
