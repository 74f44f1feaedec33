// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"context"
	"sync"
)

// MockTranscriber returns canned transcripts in order, then ErrNoSpeech.
type MockTranscriber struct {
	Transcripts []string
	Err         error

	mu   sync.Mutex
	next int
}

func (m *MockTranscriber) Transcribe(ctx context.Context) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next >= len(m.Transcripts) {
		return "", ErrNoSpeech
	}
	t := m.Transcripts[m.next]
	m.next++
	return t, nil
}

// MockSpeaker records everything spoken.
type MockSpeaker struct {
	Err error

	mu     sync.Mutex
	spoken []string
}

func (m *MockSpeaker) Speak(ctx context.Context, text string) error {
	if m.Err != nil {
		return m.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, text)
	return nil
}

// Spoken returns a copy of everything spoken so far.
func (m *MockSpeaker) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.spoken))
	copy(out, m.spoken)
	return out
}
