// Copyright 2025 The toolbridge authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors provides the classified error type shared by the
// invocation client's transports and orchestrator. Classification decides
// whether the retry executor consumes another attempt.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies invocation errors for retry handling.
type ErrorType string

const (
	// ErrorTypeAuth indicates authentication or entitlement failure (401, 403)
	ErrorTypeAuth ErrorType = "auth_error"

	// ErrorTypeNotFound indicates a server or tool was not found (404)
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeValidation indicates invalid request data (400, 422)
	ErrorTypeValidation ErrorType = "validation_error"

	// ErrorTypeRateLimit indicates rate limit exceeded (429)
	ErrorTypeRateLimit ErrorType = "rate_limited"

	// ErrorTypeServer indicates a server-side error (500, 502, 503, 504)
	ErrorTypeServer ErrorType = "server_error"

	// ErrorTypeTimeout indicates the invocation deadline was reached
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeConnection indicates network/DNS failure
	ErrorTypeConnection ErrorType = "connection_error"

	// ErrorTypeConfig indicates a misconfigured server descriptor
	ErrorTypeConfig ErrorType = "config_error"

	// ErrorTypeDisabled indicates the server is administratively disabled
	ErrorTypeDisabled ErrorType = "server_disabled"

	// ErrorTypeProtocol indicates the server answered but the reply was
	// unusable (tool missing, malformed content)
	ErrorTypeProtocol ErrorType = "protocol_error"

	// ErrorTypeInternal indicates an unexpected failure during orchestration
	ErrorTypeInternal ErrorType = "internal_error"
)

// Error represents an invocation error with classification.
type Error struct {
	// Type classifies the error for retry logic
	Type ErrorType

	// Message is the human-readable error description
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}

	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if this error type should be retried.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServer, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// New creates a classified error.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err in a classified error, preserving an existing
// classification if err already carries one.
func Wrap(t ErrorType, message string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Type: t, Message: message, Cause: err}
}

// NewConnection creates an error for network/DNS failures.
func NewConnection(cause error) *Error {
	return &Error{
		Type:    ErrorTypeConnection,
		Message: "connection failed",
		Cause:   cause,
	}
}

// NewTimeout creates an error for invocation timeouts.
func NewTimeout(timeoutMs int64) *Error {
	return &Error{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("operation timed out after %dms", timeoutMs),
	}
}

// FromHTTPStatus creates a classified Error from an HTTP response.
// The response body is not included in the message to avoid leaking
// sensitive data; callers log it separately.
func FromHTTPStatus(statusCode int, statusText string) *Error {
	var t ErrorType
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		t = ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		t = ErrorTypeNotFound
	case statusCode == http.StatusTooManyRequests:
		t = ErrorTypeRateLimit
	case statusCode >= 500:
		t = ErrorTypeServer
	default:
		t = ErrorTypeValidation
	}

	return &Error{
		Type:       t,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("%d %s", statusCode, statusText),
	}
}
