// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/storage"
	"github.com/jeranaias/pocketchat/internal/voice"
)

// Errors returned by the manager.
var (
	// ErrBusy indicates a request is already in flight.
	ErrBusy = errors.New("a request is already in flight")

	// ErrEmptyInput indicates Send was called with blank text.
	ErrEmptyInput = errors.New("empty input")
)

// Streamer is the chat client surface the manager consumes.
type Streamer interface {
	StreamCompletion(ctx context.Context, history []model.Message) (<-chan chat.StreamEvent, error)
	GetCompletion(ctx context.Context, history []model.Message) (string, error)
}

// Manager owns the conversation list and the active conversation, and
// drives requests through the chat client. All methods are safe for
// concurrent use, but only one Send runs at a time.
type Manager struct {
	client Streamer
	store  storage.Store

	mu            sync.Mutex
	conversations []*model.Conversation
	active        *model.Conversation
	sending       bool
	dirty         bool

	// onUpdate, when set, receives an immutable snapshot of the active
	// conversation after every state change during streaming.
	onUpdate func(snapshot *model.Conversation)
}

// NewManager loads saved conversations from the store and starts with a
// fresh active conversation.
func NewManager(client Streamer, store storage.Store) (*Manager, error) {
	saved, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	m := &Manager{
		client:        client,
		store:         store,
		conversations: saved,
	}
	m.newConversationLocked()
	return m, nil
}

// SetClient swaps the chat client. Used by config hot-reload; the new
// client applies from the next Send.
func (m *Manager) SetClient(client Streamer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
}

// SetUpdateCallback registers the snapshot observer. Pass nil to remove.
func (m *Manager) SetUpdateCallback(fn func(snapshot *model.Conversation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// NewConversation starts a fresh conversation and makes it active.
func (m *Manager) NewConversation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newConversationLocked()
}

func (m *Manager) newConversationLocked() {
	conv := model.NewConversation()
	m.conversations = append([]*model.Conversation{conv}, m.conversations...)
	m.active = conv
}

// Active returns an immutable snapshot of the active conversation.
func (m *Manager) Active() *model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Clone()
}

// List returns snapshots of all conversations, most recently updated
// first. Empty conversations other than the active one are skipped.
func (m *Manager) List() []*model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		if conv.IsEmpty() && conv != m.active {
			continue
		}
		out = append(out, conv.Clone())
	}
	return out
}

// Resume makes the conversation with the given ID active.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conv := range m.conversations {
		if conv.ID == id {
			m.active = conv
			return nil
		}
	}
	return storage.ErrNotFound
}

// Delete removes a conversation. Deleting the active conversation starts
// a fresh one.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, conv := range m.conversations {
		if conv.ID != id {
			continue
		}
		m.conversations = append(m.conversations[:i], m.conversations[i+1:]...)
		if m.active == conv {
			m.newConversationLocked()
		}
		m.dirty = true
		return m.store.Delete(id)
	}
	return storage.ErrNotFound
}

// =============================================================================
// SENDING
// =============================================================================

// Send appends text as a user turn on the active conversation, streams
// the assistant reply, and returns the full reply text.
//
// During streaming each delta is applied to the conversation and the
// update callback observes a fresh snapshot. On failure the placeholder
// is removed and a fallback assistant message records the error. On
// cancellation no terminal event arrives; any partial reply already
// applied is kept, an untouched placeholder is removed.
func (m *Manager) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.sending = true
	client := m.client
	conv := m.active
	conv.AddUserMessage(text)
	conv.AppendPlaceholder()
	history := conv.History()
	m.dirty = true
	notify := m.snapshotLocked(conv)
	m.mu.Unlock()
	notify()

	defer func() {
		m.mu.Lock()
		m.sending = false
		m.mu.Unlock()
	}()

	if err := m.saveAll(); err != nil {
		log.Printf("save before send failed: %v", err)
	}

	events, err := client.StreamCompletion(ctx, history)
	if err != nil {
		m.failSend(conv, err)
		return "", err
	}

	var reply strings.Builder
	for ev := range events {
		switch ev.Kind {
		case chat.EventDelta:
			reply.WriteString(ev.Delta)
			m.mu.Lock()
			conv.AppendToLast(ev.Delta)
			m.dirty = true
			notify := m.snapshotLocked(conv)
			m.mu.Unlock()
			notify()

		case chat.EventCompleted:
			m.mu.Lock()
			m.dirty = true
			notify := m.snapshotLocked(conv)
			m.mu.Unlock()
			notify()
			if err := m.saveAll(); err != nil {
				log.Printf("save after completion failed: %v", err)
			}
			return reply.String(), nil

		case chat.EventFailed:
			m.failSend(conv, ev.Err)
			return "", ev.Err
		}
	}

	// Channel closed without a terminal event: the request was cancelled.
	m.mu.Lock()
	conv.RemovePending()
	notify = m.snapshotLocked(conv)
	m.mu.Unlock()
	notify()
	if err := m.saveAll(); err != nil {
		log.Printf("save after cancel failed: %v", err)
	}
	return reply.String(), ctx.Err()
}

// failSend replaces the placeholder with a fallback assistant message
// recording the error.
func (m *Manager) failSend(conv *model.Conversation, cause error) {
	m.mu.Lock()
	conv.RemovePending()
	conv.AddMessage(model.NewAssistantMessage(fmt.Sprintf("Request failed: %v", cause)))
	m.dirty = true
	notify := m.snapshotLocked(conv)
	m.mu.Unlock()
	notify()

	if err := m.saveAll(); err != nil {
		log.Printf("save after failure failed: %v", err)
	}
}

// snapshotLocked captures a snapshot and the observer while holding m.mu
// and returns the delivery to invoke after unlocking. Observers are free
// to call back into the manager.
func (m *Manager) snapshotLocked(conv *model.Conversation) func() {
	if m.onUpdate == nil {
		return func() {}
	}
	fn := m.onUpdate
	snap := conv.Clone()
	return func() { fn(snap) }
}

// SpeakExchange runs one spoken turn on the active conversation through
// the non-streaming completion path and persists the result. The exchange
// itself works on a history copy; the resulting messages are applied to
// the conversation under the lock.
func (m *Manager) SpeakExchange(ctx context.Context, ex *voice.Exchange) (string, error) {
	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.sending = true
	client := m.client
	conv := m.active
	history := conv.History()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.sending = false
		m.mu.Unlock()
	}()

	if ex.Completer == nil {
		ex.Completer = client
	}
	transcript, reply, err := ex.Run(ctx, history)

	if transcript != "" {
		m.mu.Lock()
		conv.AddUserMessage(transcript)
		if reply != "" {
			conv.AddMessage(model.NewAssistantMessage(reply))
		}
		m.dirty = true
		notify := m.snapshotLocked(conv)
		m.mu.Unlock()
		notify()

		if saveErr := m.saveAll(); saveErr != nil {
			log.Printf("save after voice exchange failed: %v", saveErr)
		}
	}
	return reply, err
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save persists all conversations if there are unsaved changes.
func (m *Manager) Save() error {
	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.saveAll()
}

// IsDirty reports whether there are unsaved changes.
func (m *Manager) IsDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// saveAll writes every non-empty conversation and clears the dirty flag.
// The set handed to the store holds clones taken under the lock: the
// store reads message contents on its own schedule, and an in-flight
// stream keeps mutating the originals.
func (m *Manager) saveAll() error {
	m.mu.Lock()
	set := make([]*model.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		if !conv.IsEmpty() {
			set = append(set, conv.Clone())
		}
	}
	m.mu.Unlock()

	if err := m.store.Save(set); err != nil {
		return err
	}

	m.mu.Lock()
	m.dirty = false
	m.mu.Unlock()
	return nil
}

// Autosave persists dirty state every interval until ctx is cancelled.
func (m *Manager) Autosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Save(); err != nil {
				log.Printf("autosave failed: %v", err)
			}
		}
	}
}

// Close saves outstanding changes and closes the store.
func (m *Manager) Close() error {
	saveErr := m.Save()
	closeErr := m.store.Close()
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}
