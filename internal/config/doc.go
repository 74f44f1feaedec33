// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// pocketchat.
//
// Configuration is read from ~/.pocketchat/config.toml with built-in
// defaults and environment variable overrides (POCKETCHAT_API_KEY,
// POCKETCHAT_BASE_URL, POCKETCHAT_MODEL). Validation runs at load time so
// a missing or placeholder API key is a startup error, never a per-request
// surprise.
package config
