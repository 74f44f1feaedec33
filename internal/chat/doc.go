// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming chat-completion client.
//
// The client speaks the OpenAI-compatible chat-completions protocol: a POST
// to /chat/completions with the conversation history, either waiting for
// the full response (GetCompletion) or consuming a server-sent-event stream
// of incremental text deltas (StreamCompletion).
//
// StreamCompletion returns a channel of tagged events: zero or more
// EventDelta carrying one text fragment each, terminated by exactly one
// EventCompleted, or by exactly one EventFailed. Cancelling the context
// closes the channel without a terminal event; the caller asked for the
// cancellation and is not told about it again.
//
// The client performs no retries. Retry policy belongs to the caller.
package chat
