// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"context"
	"errors"
	"strings"

	"github.com/jeranaias/pocketchat/internal/model"
)

// ErrNoSpeech indicates the transcriber produced no usable text.
var ErrNoSpeech = errors.New("no speech detected")

// Transcriber captures one spoken user turn and returns the final
// transcript. Implementations block until the utterance ends or ctx is
// cancelled.
type Transcriber interface {
	Transcribe(ctx context.Context) (string, error)
}

// Speaker reads text aloud. Speak blocks until playback finishes or ctx
// is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Completer is the completion surface Exchange consumes. The chat client
// satisfies it.
type Completer interface {
	GetCompletion(ctx context.Context, history []model.Message) (string, error)
}

// Exchange runs one spoken turn: transcribe the user, fetch a completion
// over the conversation history plus the new transcript, and speak the
// reply when a Speaker is set. The exchange never touches conversation
// state; the caller owns it and applies the returned turn.
type Exchange struct {
	Transcriber Transcriber
	Completer   Completer

	// Speaker is optional; nil disables spoken replies.
	Speaker Speaker

	// OnTranscript, when set, observes the user transcript before the
	// completion request goes out.
	OnTranscript func(transcript string)
}

// Run performs one exchange over the given history. A non-empty
// transcript is returned as soon as transcription succeeded, even when
// the completion or playback fails afterwards, so the caller can keep
// the user turn. The reply is non-empty only once a completion arrived.
func (e *Exchange) Run(ctx context.Context, history []model.Message) (transcript, reply string, err error) {
	transcript, err = e.Transcriber.Transcribe(ctx)
	if err != nil {
		return "", "", err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", "", ErrNoSpeech
	}
	if e.OnTranscript != nil {
		e.OnTranscript(transcript)
	}

	wire := make([]model.Message, 0, len(history)+1)
	wire = append(wire, history...)
	wire = append(wire, *model.NewUserMessage(transcript))

	reply, err = e.Completer.GetCompletion(ctx, wire)
	if err != nil {
		return transcript, "", err
	}

	if e.Speaker != nil {
		if err := e.Speaker.Speak(ctx, reply); err != nil {
			return transcript, reply, err
		}
	}
	return transcript, reply, nil
}
