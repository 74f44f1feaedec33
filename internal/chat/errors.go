// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

// Error variables for failures detected before a request is sent.
var (
	// ErrNotConfigured indicates a missing or placeholder API key.
	// Detected at client construction, never per request.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrPendingInHistory indicates the request history contains a pending
	// placeholder message. Placeholders carry no content and must be
	// stripped by the caller before building a request.
	ErrPendingInHistory = errors.New("history contains a pending placeholder")
)

// RequestError wraps a failure to construct the request body. This is a
// programming defect, not a runtime condition.
type RequestError struct {
	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request construction failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ServerError represents a non-2xx response from the server. Message holds
// the server-provided error text when the body could be parsed, else the
// raw body text.
type ServerError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.Status)
}

// NetworkError wraps a transport-level failure: connection error, timeout,
// or a broken stream.
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MalformedResponseError indicates the non-streaming response body could
// not be parsed or lacked the expected fields.
type MalformedResponseError struct {
	Err error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
