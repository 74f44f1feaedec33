// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package voice defines the speech collaborator contracts for pocketchat.
//
// Transcriber turns one spoken user turn into text, Speaker reads a reply
// aloud. Exchange bridges a single spoken turn through the non-streaming
// completion path: transcribe, complete, speak. Real engines live outside
// this module; mock implementations are provided for tests and demos.
package voice
