package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Kind classifies an upstream failure.
type Kind string

const (
	// KindRateLimited means BGG answered 429, sent a rate limit error
	// document, or a cooldown is still active.
	KindRateLimited Kind = "rate_limited"

	// KindTimeout means the request did not complete in time.
	KindTimeout Kind = "timeout"

	// KindNetwork means the request never produced a response.
	KindNetwork Kind = "network"

	// KindNotFound means upstream reported the resource missing.
	KindNotFound Kind = "not_found"

	// KindServer represents 5xx responses.
	KindServer Kind = "server"

	// KindQueued represents 202: BGG accepted the request and wants it repeated.
	KindQueued Kind = "queued"

	// KindClient represents other 4xx responses and error documents.
	KindClient Kind = "client"
)

// UpstreamError is a BGG failure with its classification.
type UpstreamError struct {
	Kind       Kind
	StatusCode int
	Message    string

	// RetryAfter is the cooldown left when Kind is KindRateLimited.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("BGG %s error (status %d): %s: %v",
			e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("BGG %s error (status %d): %s",
		e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// shouldRetry reports whether a failure of this kind is retried in place.
// Rate limits, timeouts and network failures surface to the caller.
func shouldRetry(kind Kind) bool {
	switch kind {
	case KindServer, KindQueued:
		return true
	default:
		return false
	}
}

// kindOf returns the kind of err, or "" when err is not an UpstreamError.
func kindOf(err error) Kind {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return ""
}

// kindForMessage classifies the message of an upstream error document.
func kindForMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return KindRateLimited
	case strings.Contains(lower, "not found"):
		return KindNotFound
	default:
		return KindClient
	}
}
