// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/pocketchat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is a single {role, content} pair in a request body.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body of a chat-completions request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the body of a non-streaming chat-completions response.
type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// streamChunk is one JSON payload within the SSE stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// content returns choices[0].delta.content, or "" when absent.
func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// apiErrorResponse is the {error: {message}} error body shape.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// historyToWire maps conversation history to wire messages in order.
// Pending placeholders are rejected: the caller must strip them first.
func historyToWire(history []model.Message) ([]ChatMessage, error) {
	messages := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.IsPending {
			return nil, ErrPendingInHistory
		}
		messages = append(messages, ChatMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}
	return messages, nil
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates stream events.
type EventKind int

const (
	// EventDelta carries one incremental fragment of assistant text.
	EventDelta EventKind = iota
	// EventCompleted terminates a successful stream. Emitted exactly once.
	EventCompleted
	// EventFailed terminates a failed stream. Emitted instead of
	// EventCompleted, never after it.
	EventFailed
)

// StreamEvent is one event in the delta sequence produced by
// StreamCompletion.
type StreamEvent struct {
	Kind  EventKind
	Delta string // set for EventDelta
	Err   error  // set for EventFailed
}
