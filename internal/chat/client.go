// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/pocketchat/internal/model"
)

// Configuration constants for the chat-completions API.
const (
	// DefaultBaseURL is the base URL of the chat-completions API.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when the config leaves the model empty.
	DefaultModel = "gpt-4o-mini"

	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 0.7

	// DefaultMaxTokens caps the generated completion length.
	DefaultMaxTokens = 1024

	// DefaultTimeout bounds non-streaming requests. Streaming requests
	// carry no client timeout; they are cancelled through their context.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize limits non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// placeholderKeys are config template values that look like a key but are
// not one. Shipping a placeholder is a configuration error, caught at
// construction instead of surfacing per request.
var placeholderKeys = map[string]bool{
	"":              true,
	"sk-REPLACE-ME": true,
	"YOUR_API_KEY":  true,
	"changeme":      true,
}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds everything the client needs, passed explicitly to the
// constructor. There is no ambient configuration.
type Config struct {
	// BaseURL is the API root, without the /chat/completions suffix.
	BaseURL string

	// APIKey is the bearer credential. Required.
	APIKey string

	// Model is the model identifier sent with each request.
	Model string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// RequestsPerMinute throttles outgoing requests. Zero means unlimited.
	RequestsPerMinute int
}

// withDefaults fills unset fields from the package defaults.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of the most recent request.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateErrored    State = "errored"
	StateCancelled  State = "cancelled"
)

// =============================================================================
// CLIENT
// =============================================================================

// Client issues chat-completion requests. One outstanding request per
// client instance; starting a second stream while one is active does not
// cancel the first, that is the caller's responsibility.
type Client struct {
	cfg Config

	// httpClient serves non-streaming requests with a hard timeout.
	httpClient *http.Client

	// streamClient serves streaming requests. No client timeout; the
	// request lives as long as its context.
	streamClient *http.Client

	// limiter paces outgoing requests when configured.
	limiter *rate.Limiter

	mu    sync.Mutex
	state State
}

// NewClient validates the config and returns a ready client. A missing or
// placeholder API key fails here with ErrNotConfigured so misconfiguration
// is a startup error, not a per-request surprise.
func NewClient(cfg Config) (*Client, error) {
	if placeholderKeys[strings.TrimSpace(cfg.APIKey)] {
		return nil, ErrNotConfigured
	}

	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
		limiter:      limiter,
		state:        StateIdle,
	}, nil
}

// State returns the lifecycle state of the most recent request.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// wait blocks on the rate limiter when one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// setHeaders sets the headers common to all chat-completion requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// buildRequest marshals the history into a chat-completions request.
func (c *Client) buildRequest(ctx context.Context, history []model.Message, stream bool) (*http.Request, error) {
	messages, err := historyToWire(history)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      stream,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	c.setHeaders(req)
	return req, nil
}

// =============================================================================
// NON-STREAMING COMPLETION
// =============================================================================

// GetCompletion sends the history with streaming disabled and returns the
// single completion string. Used where the caller cannot consume
// incremental deltas, such as before handing text to a speech synthesizer.
func (c *Client) GetCompletion(ctx context.Context, history []model.Message) (string, error) {
	req, err := c.buildRequest(ctx, history, false)
	if err != nil {
		return "", err
	}

	if err := c.wait(ctx); err != nil {
		return "", &NetworkError{Err: err}
	}

	c.setState(StateRequesting)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setState(StateErrored)
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body)
	if err != nil {
		c.setState(StateErrored)
		return "", &NetworkError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.setState(StateErrored)
		return "", classifyErrorBody(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.setState(StateErrored)
		return "", &MalformedResponseError{Err: err}
	}
	if len(parsed.Choices) == 0 {
		c.setState(StateErrored)
		return "", &MalformedResponseError{Err: fmt.Errorf("response has no choices")}
	}

	c.setState(StateCompleted)
	return parsed.Choices[0].Message.Content, nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// readLimited reads a response body with a size cap.
func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// classifyErrorBody turns a non-2xx response into a ServerError, carrying
// the server's {error: {message}} text when the body parses, else the raw
// body text.
func classifyErrorBody(status int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &ServerError{Status: status, Message: apiErr.Error.Message}
	}
	return &ServerError{Status: status, Message: strings.TrimSpace(string(body))}
}
