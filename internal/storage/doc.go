// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for pocketchat.
//
// The Store interface is the contract the orchestration layer depends on:
// Load returns every saved conversation ordered most recent first, Save
// persists the full set after a mutation. Two backends are provided: a
// JSON file per conversation, and a single SQLite database.
//
// Pending placeholder messages are never persisted; Save strips them.
package storage
