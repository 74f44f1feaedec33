// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pocketchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// ID and CreatedAt are assigned at creation and never change. Content is
// mutable because streaming appends fragments to the most recent assistant
// message. IsPending marks a placeholder awaiting the first response
// fragment; it is cleared as soon as content arrives and is never persisted
// as true.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Placeholder state, not persisted.
	IsPending bool `json:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID("msg"),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message with final content.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewPendingMessage creates the placeholder assistant message shown while
// awaiting the first response fragment. Invariant: pending messages have
// empty content.
func NewPendingMessage() *Message {
	return &Message{
		ID:        generateID("msg"),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		IsPending: true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Append adds a streamed fragment to the message content. The first
// fragment clears the pending flag, so a message is never simultaneously
// pending and non-empty.
func (m *Message) Append(fragment string) {
	if fragment == "" {
		return
	}
	m.IsPending = false
	m.Content += fragment
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return m.Content == ""
}

// Preview returns a truncated single-line preview of the message content.
func (m *Message) Preview(maxRunes int) string {
	return util.TruncateRunes(util.CollapseWhitespace(m.Content), maxRunes)
}

// EstimateTokens gives a rough token count using ~4 characters per token.
func (m *Message) EstimateTokens() int {
	return (len(m.Content) + 3) / 4
}

// generateID creates a unique, opaque identifier with a type prefix.
func generateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
