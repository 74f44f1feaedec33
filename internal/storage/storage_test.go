// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pocketchat/internal/model"
)

// openBackend opens the named backend in a temp directory and closes it
// when the test ends.
func openBackend(t *testing.T, backend string) Store {
	t.Helper()
	store, err := Open(backend, t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleConversation(title string) *model.Conversation {
	conv := model.NewConversation()
	conv.AddUserMessage(title)
	conv.AddMessage(model.NewAssistantMessage("reply to " + title))
	return conv
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := openBackend(t, backend)

			conv := sampleConversation("hello there")
			require.NoError(t, store.Save([]*model.Conversation{conv}))

			loaded, err := store.Load()
			require.NoError(t, err)
			require.Len(t, loaded, 1)

			got := loaded[0]
			assert.Equal(t, conv.ID, got.ID)
			assert.Equal(t, conv.Title, got.Title)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, model.RoleUser, got.Messages[0].Role)
			assert.Equal(t, "hello there", got.Messages[0].Content)
			assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
		})
	}
}

func TestStore_LoadOrdersMostRecentFirst(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := openBackend(t, backend)

			older := sampleConversation("older")
			newer := sampleConversation("newer")
			older.UpdatedAt = time.Now().Add(-time.Hour)
			newer.UpdatedAt = time.Now()

			require.NoError(t, store.Save([]*model.Conversation{older, newer}))

			loaded, err := store.Load()
			require.NoError(t, err)
			require.Len(t, loaded, 2)
			assert.Equal(t, newer.ID, loaded[0].ID)
			assert.Equal(t, older.ID, loaded[1].ID)
		})
	}
}

func TestStore_PendingNeverPersisted(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := openBackend(t, backend)

			conv := model.NewConversation()
			conv.AddUserMessage("question")
			conv.AppendPlaceholder()
			require.NotNil(t, conv.Pending())

			require.NoError(t, store.Save([]*model.Conversation{conv}))

			// Saving must not mutate the in-memory conversation.
			assert.NotNil(t, conv.Pending())

			loaded, err := store.Load()
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			require.Len(t, loaded[0].Messages, 1)
			assert.Equal(t, model.RoleUser, loaded[0].Messages[0].Role)
			assert.Nil(t, loaded[0].Pending())
		})
	}
}

func TestStore_SaveReplacesStoredSet(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := openBackend(t, backend)

			first := sampleConversation("first")
			second := sampleConversation("second")
			require.NoError(t, store.Save([]*model.Conversation{first, second}))

			// Save a set without the first conversation; it must be gone.
			require.NoError(t, store.Save([]*model.Conversation{second}))

			loaded, err := store.Load()
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			assert.Equal(t, second.ID, loaded[0].ID)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := openBackend(t, backend)

			conv := sampleConversation("doomed")
			require.NoError(t, store.Save([]*model.Conversation{conv}))

			require.NoError(t, store.Delete(conv.ID))

			loaded, err := store.Load()
			require.NoError(t, err)
			assert.Empty(t, loaded)

			assert.ErrorIs(t, store.Delete(conv.ID), ErrNotFound)
		})
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			store := openBackend(t, backend)
			loaded, err := store.Load()
			require.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("cloud", t.TempDir(), 0)
	assert.Error(t, err)
}

func TestJSONStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir, 0)
	require.NoError(t, err)

	conv := sampleConversation("survivor")
	require.NoError(t, store.Save([]*model.Conversation{conv}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conv_bad.json"), []byte("{not json"), 0644))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, conv.ID, loaded[0].ID)
}

func TestJSONStore_EnforcesLimit(t *testing.T) {
	store, err := NewJSONStore(t.TempDir(), 2)
	require.NoError(t, err)

	var set []*model.Conversation
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		conv := sampleConversation("conversation")
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		set = append(set, conv)
	}
	require.NoError(t, store.Save(set))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	// The two most recently updated survive.
	assert.Equal(t, set[3].ID, loaded[0].ID)
	assert.Equal(t, set[2].ID, loaded[1].ID)
}

func TestSQLiteStore_MessageOrderSurvivesReload(t *testing.T) {
	store := openBackend(t, "sqlite")

	conv := model.NewConversation()
	conv.AddUserMessage("one")
	conv.AddMessage(model.NewAssistantMessage("two"))
	conv.AddUserMessage("three")
	conv.AddMessage(model.NewAssistantMessage("four"))

	require.NoError(t, store.Save([]*model.Conversation{conv}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0].Messages, 4)
	for i, want := range []string{"one", "two", "three", "four"} {
		assert.Equal(t, want, loaded[0].Messages[i].Content)
	}
}
