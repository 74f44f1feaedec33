// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates conversations, the chat client, and the
// store.
//
// Manager owns the active conversation. Callers never mutate conversation
// state directly: Send appends the user turn, drives the streaming
// request, applies each delta, and persists on completion. Observers see
// immutable snapshots. One request runs at a time.
package session
