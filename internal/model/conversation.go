// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/pocketchat/internal/util"
)

// TitleMaxRunes is the maximum length of an auto-derived conversation title.
// Longer first messages are cut at this length and marked with an ellipsis.
const TitleMaxRunes = 30

// MaxMessages is the maximum number of messages kept in conversation
// history. When exceeded, the oldest non-system messages are pruned to
// prevent unbounded memory growth.
const MaxMessages = 1000

// DefaultTitle is used for conversations with no user message yet.
const DefaultTitle = "New Conversation"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered chat history with metadata.
//
// Messages are kept in insertion order and never reordered. UpdatedAt is
// bumped on every mutation of Messages. At most one pending placeholder
// exists at any time.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`
}

// NewConversation creates a new empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateID("conv"),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.touch()
	c.updateTitle()
	c.pruneOldMessages()
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddSystemMessage creates and appends a system message.
func (c *Conversation) AddSystemMessage(content string) *Message {
	msg := NewSystemMessage(content)
	c.AddMessage(msg)
	return msg
}

// AppendPlaceholder appends the pending placeholder for an in-flight
// response. Any existing placeholder is removed first so the conversation
// never holds two.
func (c *Conversation) AppendPlaceholder() *Message {
	c.RemovePending()
	msg := NewPendingMessage()
	c.Messages = append(c.Messages, msg)
	c.touch()
	return msg
}

// Pending returns the current pending placeholder, or nil.
func (c *Conversation) Pending() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsPending {
			return c.Messages[i]
		}
	}
	return nil
}

// AppendToLast adds a streamed fragment to the most recent assistant
// message, clearing its pending flag on the first fragment.
func (c *Conversation) AppendToLast(fragment string) {
	if fragment == "" {
		return
	}
	last := c.LastMessage()
	if last == nil || last.Role != RoleAssistant {
		return
	}
	last.Append(fragment)
	c.touch()
}

// RemovePending removes the pending placeholder if one exists. Returns true
// if a placeholder was removed.
func (c *Conversation) RemovePending() bool {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsPending {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.touch()
			return true
		}
	}
	return false
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastAssistantText returns the content of the most recent assistant
// message, or "" if there is none.
func (c *Conversation) LastAssistantText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant && !c.Messages[i].IsPending {
			return c.Messages[i].Content
		}
	}
	return ""
}

// History returns value copies of the messages to send as request history.
// Pending placeholders are excluded: they carry no content and must not be
// serialized into a request.
func (c *Conversation) History() []Message {
	history := make([]Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.IsPending {
			continue
		}
		history = append(history, *msg)
	}
	return history
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle derives the title from the first user message if it has not
// been set yet. Titles at most TitleMaxRunes long are used verbatim; longer
// ones are cut at TitleMaxRunes with an ellipsis marker appended.
func (c *Conversation) updateTitle() {
	if c.Title != "" && c.Title != DefaultTitle {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			c.Title = util.Ellipsize(util.CollapseWhitespace(msg.Content), TitleMaxRunes)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.touch()
}

// Preview returns a short single-line preview of the conversation.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Preview(80)
		}
	}
	return "Empty conversation"
}

// EstimateTokens estimates the total token count of the conversation.
func (c *Conversation) EstimateTokens() int {
	total := 0
	for _, msg := range c.Messages {
		total += msg.EstimateTokens()
		total += 4 // structural overhead per message
	}
	return total
}

// =============================================================================
// COPYING
// =============================================================================

// Clone creates a deep copy of the conversation. Snapshots handed to
// observers during streaming are clones, so callers never share mutable
// state with the in-flight exchange.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// =============================================================================
// INTERNAL
// =============================================================================

func (c *Conversation) touch() {
	c.UpdatedAt = time.Now()
}

// pruneOldMessages drops the oldest non-system messages once the history
// exceeds MaxMessages. Surviving messages keep their relative order;
// system messages are never dropped.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	drop := len(c.Messages) - MaxMessages
	kept := make([]*Message, 0, MaxMessages)
	for _, msg := range c.Messages {
		if drop > 0 && msg.Role != RoleSystem {
			drop--
			continue
		}
		kept = append(kept, msg)
	}
	c.Messages = kept
}
