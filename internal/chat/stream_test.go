// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeranaias/pocketchat/internal/model"
)

const testKey = "sk-test-0123456789abcdef"

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: baseURL, APIKey: testKey, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func userHistory(content string) []model.Message {
	return []model.Message{*model.NewUserMessage(content)}
}

// collectEvents drains the stream and returns all delivered events.
func collectEvents(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var got []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out draining event channel")
		}
	}
}

func sseHandler(t *testing.T, lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testKey {
			t.Errorf("missing bearer credential, got %q", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request body did not decode: %v", err)
		}
		if !req.Stream {
			t.Error("streaming request should set stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprint(w, line)
			flusher.Flush()
		}
	}
}

// =============================================================================
// END-TO-END STREAMING
// =============================================================================

// Two deltas then [DONE] reassemble to "Hello".
func TestStreamCompletion_EndToEnd(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
		"data: [DONE]\n\n",
	))
	defer server.Close()

	client := newTestClient(t, server.URL)
	events, err := client.StreamCompletion(context.Background(), userHistory("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	got := collectEvents(t, events)
	want := []StreamEvent{
		{Kind: EventDelta, Delta: "Hel"},
		{Kind: EventDelta, Delta: "lo"},
		{Kind: EventCompleted},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	text := ""
	for i, ev := range got {
		if ev.Kind != want[i].Kind || ev.Delta != want[i].Delta {
			t.Errorf("event %d = %+v, want %+v", i, ev, want[i])
		}
		text += ev.Delta
	}
	if text != "Hello" {
		t.Errorf("concatenated text = %q, want %q", text, "Hello")
	}
	if client.State() != StateCompleted {
		t.Errorf("State = %q, want %q", client.State(), StateCompleted)
	}
}

// A server that closes the body without [DONE] yields the same deltas and
// still exactly one completion event.
func TestStreamCompletion_CompletesWithoutDoneMarker(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		// Final line deliberately has no trailing newline: it must be
		// flushed and processed at end of body.
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}",
	))
	defer server.Close()

	client := newTestClient(t, server.URL)
	events, err := client.StreamCompletion(context.Background(), userHistory("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	if got[0].Delta != "Hel" || got[1].Delta != "lo" {
		t.Errorf("deltas = %q %q, want Hel lo", got[0].Delta, got[1].Delta)
	}
	if got[2].Kind != EventCompleted {
		t.Errorf("terminal event = %+v, want completion", got[2])
	}
}

// Malformed lines inside the stream are swallowed without failing it.
func TestStreamCompletion_MalformedLinesIgnored(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n",
		"data: {oops\n\n: heartbeat\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n",
		"data: [DONE]\n\n",
	))
	defer server.Close()

	client := newTestClient(t, server.URL)
	events, err := client.StreamCompletion(context.Background(), userHistory("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	if got[0].Delta != "a" || got[1].Delta != "b" || got[2].Kind != EventCompleted {
		t.Errorf("unexpected events: %+v", got)
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancelling after N deltas delivers neither a completion nor an error
// event; the channel just closes.
func TestStreamCompletion_CancellationIsSilent(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n")
		flusher.Flush()
		// Hold the stream open until the client has gone away.
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(t, server.URL)
	events, err := client.StreamCompletion(ctx, userHistory("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	// Consume the two deltas, then cancel.
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if ev.Kind != EventDelta {
				t.Fatalf("event %d = %+v, want a delta", i, ev)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for delta")
		}
	}
	cancel()

	// Everything after cancellation must be silence: no completion, no
	// error, no further deltas, only channel close.
	for ev := range events {
		t.Errorf("received event after cancellation: %+v", ev)
	}
	if state := client.State(); state != StateCancelled {
		t.Errorf("State = %q, want %q", state, StateCancelled)
	}
}

// =============================================================================
// FAILURE CLASSIFICATION
// =============================================================================

func TestStreamCompletion_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	events, err := client.StreamCompletion(context.Background(), userHistory("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 1 || got[0].Kind != EventFailed {
		t.Fatalf("got %+v, want a single failure event", got)
	}

	var srvErr *ServerError
	if !errors.As(got[0].Err, &srvErr) {
		t.Fatalf("error type = %T, want *ServerError", got[0].Err)
	}
	if srvErr.Status != http.StatusUnauthorized || srvErr.Message != "invalid api key" {
		t.Errorf("ServerError = %+v", srvErr)
	}
	if client.State() != StateErrored {
		t.Errorf("State = %q, want %q", client.State(), StateErrored)
	}
}

func TestStreamCompletion_ServerErrorUnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	events, _ := client.StreamCompletion(context.Background(), userHistory("Hi"))
	got := collectEvents(t, events)

	var srvErr *ServerError
	if len(got) != 1 || !errors.As(got[0].Err, &srvErr) {
		t.Fatalf("got %+v, want a single ServerError failure", got)
	}
	if srvErr.Status != http.StatusBadGateway || srvErr.Message != "upstream exploded" {
		t.Errorf("ServerError = %+v", srvErr)
	}
}

// A connection that dies mid-stream is a network error; deltas already
// delivered stay delivered and are not rolled back.
func TestStreamCompletion_TransportFailureMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, bufrw, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		// Promise more bytes than are delivered, then slam the
		// connection shut: the client sees an unexpected EOF.
		bufrw.WriteString("HTTP/1.1 200 OK\r\n" +
			"Content-Type: text/event-stream\r\n" +
			"Content-Length: 4096\r\n\r\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		bufrw.Flush()
		conn.Close()
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	events, err := client.StreamCompletion(context.Background(), userHistory("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 2 {
		t.Fatalf("got %d events, want delta then failure: %+v", len(got), got)
	}
	if got[0].Kind != EventDelta || got[0].Delta != "partial" {
		t.Errorf("event 0 = %+v, want the partial delta", got[0])
	}
	var netErr *NetworkError
	if got[1].Kind != EventFailed || !errors.As(got[1].Err, &netErr) {
		t.Errorf("event 1 = %+v, want a NetworkError failure", got[1])
	}
}

// =============================================================================
// PRE-FLIGHT VALIDATION
// =============================================================================

func TestStreamCompletion_RejectsPendingHistory(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")

	history := userHistory("Hi")
	history = append(history, *model.NewPendingMessage())

	_, err := client.StreamCompletion(context.Background(), history)
	if !errors.Is(err, ErrPendingInHistory) {
		t.Errorf("err = %v, want ErrPendingInHistory", err)
	}
}

func TestStreamCompletion_OrderPreserved(t *testing.T) {
	var lines []string
	var want []string
	for i := 0; i < 50; i++ {
		frag := fmt.Sprintf("frag-%02d ", i)
		want = append(want, frag)
		lines = append(lines, fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", frag))
	}
	lines = append(lines, "data: [DONE]\n\n")

	server := httptest.NewServer(sseHandler(t, lines...))
	defer server.Close()

	client := newTestClient(t, server.URL)
	events, err := client.StreamCompletion(context.Background(), userHistory("Hi"))
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != len(want)+1 {
		t.Fatalf("got %d events, want %d", len(got), len(want)+1)
	}
	for i, frag := range want {
		if got[i].Delta != frag {
			t.Fatalf("delta %d = %q, want %q (order violated)", i, got[i].Delta, frag)
		}
	}
}
