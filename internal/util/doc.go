// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for pocketchat: atomic file
// writes used by the conversation store, and rune-safe string truncation
// used for conversation titles and previews.
package util
