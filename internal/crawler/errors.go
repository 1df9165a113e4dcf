package crawler

import (
	"context"
	"errors"
)

// Remote call failure kinds. Everything except ErrNotFound is transient and
// worth retrying.
var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrParsingFailed = errors.New("parsing failed")
	ErrServerBusy    = errors.New("server busy")
	ErrRequestFailed = errors.New("request failed")
)

// ErrorKind maps an error to a short label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrParsingFailed):
		return "parsing_failed"
	case errors.Is(err, ErrServerBusy):
		return "server_busy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "request_failed"
	}
}
