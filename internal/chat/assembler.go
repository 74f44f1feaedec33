// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"strings"
)

// doneMarker is the SSE line that terminates a stream.
const doneMarker = "data: [DONE]"

// dataPrefix introduces an SSE payload line.
const dataPrefix = "data: "

// =============================================================================
// LINE REASSEMBLY
// =============================================================================

// lineAssembler reassembles complete lines from a chunked byte stream.
// Network delivery does not align with line boundaries: a chunk may end
// mid-line or contain several lines plus a trailing partial one. The
// assembler keeps a single growable buffer scoped to one request; each
// chunk is appended, the buffer is split on newlines, and every segment
// except the last is a complete line. The last segment is retained as the
// new buffer because its remainder may arrive in the next chunk.
type lineAssembler struct {
	rem string
}

// Feed appends a chunk and returns the complete lines it unlocked, in
// order. The trailing partial line stays buffered.
func (a *lineAssembler) Feed(chunk string) []string {
	parts := strings.Split(a.rem+chunk, "\n")
	a.rem = parts[len(parts)-1]
	return parts[:len(parts)-1]
}

// Flush returns the buffered partial line, if any, and resets the buffer.
// Called once at end of body: a final line without a trailing newline is
// still a line.
func (a *lineAssembler) Flush() string {
	rem := a.rem
	a.rem = ""
	return rem
}

// =============================================================================
// LINE PARSING
// =============================================================================

// parseLine interprets one complete SSE line.
//
// Blank lines, comment lines, heartbeat lines, and malformed payloads are
// all silently ignored; the stream favors forward progress over strict
// validation because providers routinely interleave non-content lines.
func parseLine(line string) (delta string, hasDelta bool, done bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, false
	}
	if line == doneMarker {
		return "", false, true
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, false
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(line[len(dataPrefix):]), &chunk); err != nil {
		return "", false, false
	}
	if content := chunk.content(); content != "" {
		return content, true, false
	}
	return "", false, false
}
