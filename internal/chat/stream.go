// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/jeranaias/pocketchat/internal/model"
)

// streamChunkSize is the read buffer for one network chunk.
const streamChunkSize = 4096

// eventBuffer is the capacity of the event channel. It only smooths bursts;
// ordering is preserved regardless.
const eventBuffer = 32

// StreamCompletion sends the history with streaming enabled and returns a
// channel of events: zero or more EventDelta in byte-arrival order, then
// exactly one EventCompleted, or one EventFailed. The channel is closed
// after the terminal event.
//
// Cancelling ctx aborts the request and closes the channel without any
// terminal event. Failures detected before the request is sent (a pending
// placeholder in the history, marshal failure) are returned synchronously
// and no channel is created.
func (c *Client) StreamCompletion(ctx context.Context, history []model.Message) (<-chan StreamEvent, error) {
	req, err := c.buildRequest(ctx, history, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	events := make(chan StreamEvent, eventBuffer)
	go c.run(ctx, req, events)
	return events, nil
}

// run owns the network request, the response body, and the reassembly
// buffer for one stream. Nothing here is shared with another request.
func (c *Client) run(ctx context.Context, req *http.Request, events chan<- StreamEvent) {
	defer close(events)

	c.setState(StateRequesting)

	if err := c.wait(ctx); err != nil {
		// Only the context can interrupt the limiter wait.
		c.setState(StateCancelled)
		return
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			c.setState(StateCancelled)
			return
		}
		c.fail(ctx, events, &NetworkError{Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := readLimited(resp.Body)
		c.fail(ctx, events, classifyErrorBody(resp.StatusCode, body))
		return
	}

	c.consume(ctx, resp.Body, events)
}

// consume runs the reassembly loop: read a chunk, split out complete
// lines, emit a delta per content-bearing line. Parsing is synchronous and
// runs to completion for each chunk.
func (c *Client) consume(ctx context.Context, body io.Reader, events chan<- StreamEvent) {
	var asm lineAssembler
	buf := make([]byte, streamChunkSize)
	streaming := false

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !streaming {
				c.setState(StateStreaming)
				streaming = true
			}
			for _, line := range asm.Feed(string(buf[:n])) {
				delta, hasDelta, done := parseLine(line)
				if done {
					c.complete(ctx, events)
					return
				}
				if hasDelta && !c.emit(ctx, events, StreamEvent{Kind: EventDelta, Delta: delta}) {
					c.setState(StateCancelled)
					return
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				// Server closed the body without [DONE]. A missing
				// terminal marker is not an error: flush the retained
				// partial line, then complete.
				if line := asm.Flush(); line != "" {
					delta, hasDelta, done := parseLine(line)
					if done {
						c.complete(ctx, events)
						return
					}
					if hasDelta && !c.emit(ctx, events, StreamEvent{Kind: EventDelta, Delta: delta}) {
						c.setState(StateCancelled)
						return
					}
				}
				c.complete(ctx, events)
				return
			}
			if ctx.Err() != nil {
				// Cancellation is silent by contract: the caller asked
				// for it and is not told again. Buffered partial data is
				// dropped.
				c.setState(StateCancelled)
				return
			}
			c.fail(ctx, events, &NetworkError{Err: err})
			return
		}
	}
}

// emit delivers an event unless the context has been cancelled. Returns
// false when the stream should stop silently.
func (c *Client) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// complete emits the single terminal completion event.
func (c *Client) complete(ctx context.Context, events chan<- StreamEvent) {
	if c.emit(ctx, events, StreamEvent{Kind: EventCompleted}) {
		c.setState(StateCompleted)
	} else {
		c.setState(StateCancelled)
	}
}

// fail emits the single terminal failure event.
func (c *Client) fail(ctx context.Context, events chan<- StreamEvent, err error) {
	if c.emit(ctx, events, StreamEvent{Kind: EventFailed, Err: err}) {
		c.setState(StateErrored)
	} else {
		c.setState(StateCancelled)
	}
}
