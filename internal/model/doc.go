// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: ordered container for one chat session's messages
//   - Message: single turn with role, content, and timestamp
//   - Role: message role enumeration (user, assistant, system)
//
// A streaming response is represented by a pending placeholder message: it
// is appended when the request starts, its content grows as fragments
// arrive, and its pending flag clears on the first fragment. A pending
// message always has empty content, and a conversation never holds more
// than one pending placeholder at a time.
package model
