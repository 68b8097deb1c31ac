package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks bad agent/tool/intent wiring. Fatal at
	// registration time, never raised while serving a request.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidInput marks a malformed request. Surfaced as a failed
	// response, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstreamUnavailable marks an unreachable or slow model/tool
	// backend. Triggers a fallback path instead of propagating raw.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrToolFailure marks a tool invocation that ran and failed.
	ErrToolFailure = errors.New("tool failure")

	// ErrNoModelAvailable means the whole model priority list is exhausted.
	ErrNoModelAvailable = errors.New("no model available")

	// ErrContextNotFound means no durable memory exists for a session.
	ErrContextNotFound = errors.New("context not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
