package resolver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tabletop-exchange/bgg-proxy/pkg/client"
)

var (
	// ErrInvalidInput marks a request rejected before any upstream call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an id upstream did not return or that failed to parse.
	ErrNotFound = errors.New("not found or failed to parse")
)

// Category is the caller facing class of a failure.
type Category string

const (
	CategoryInvalidInput Category = "invalid_input"
	CategoryRateLimited  Category = "rate_limited"
	CategoryTimeout      Category = "timeout"
	CategoryNetwork      Category = "network"
	CategoryNotFound     Category = "not_found"
	CategoryInternal     Category = "internal"
)

// StatusCode returns the HTTP status for the category.
func (c Category) StatusCode() int {
	switch c {
	case CategoryInvalidInput:
		return http.StatusBadRequest
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	case CategoryTimeout:
		return http.StatusGatewayTimeout
	case CategoryNetwork:
		return http.StatusBadGateway
	case CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether repeating the same request later may succeed.
func (c Category) Retryable() bool {
	switch c {
	case CategoryRateLimited, CategoryTimeout, CategoryNetwork:
		return true
	default:
		return false
	}
}

// Message returns the text shown to callers for err.
// Internal failures never expose their cause.
func (c Category) Message(err error) string {
	switch c {
	case CategoryRateLimited:
		return "BoardGameGeek rate limit reached, please retry later"
	case CategoryTimeout:
		return "BoardGameGeek did not answer in time, try a more specific query"
	case CategoryNetwork:
		return "BoardGameGeek is unreachable, please retry later"
	case CategoryInternal:
		return "internal server error"
	}
	if err == nil {
		return string(c)
	}
	return err.Error()
}

// Classify maps err to a category. Sentinels and typed upstream errors
// are checked first; message matching is the last resort.
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return CategoryInvalidInput
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	}

	var upErr *client.UpstreamError
	if errors.As(err, &upErr) {
		switch upErr.Kind {
		case client.KindRateLimited:
			return CategoryRateLimited
		case client.KindTimeout:
			return CategoryTimeout
		case client.KindNetwork, client.KindServer, client.KindQueued:
			return CategoryNetwork
		case client.KindNotFound:
			return CategoryNotFound
		case client.KindClient:
			return CategoryInternal
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return CategoryTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return CategoryRateLimited
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return CategoryTimeout
	case strings.Contains(msg, "network"):
		return CategoryNetwork
	case strings.Contains(msg, "not found"):
		return CategoryNotFound
	}
	return CategoryInternal
}

// RetryAfter returns the upstream cooldown carried by err, if any.
func RetryAfter(err error) time.Duration {
	var upErr *client.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.RetryAfter
	}
	return 0
}
