package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady    = fmt.Errorf("service not ready")
	ErrValidation  = fmt.Errorf("invalid request")
	ErrUpstream    = fmt.Errorf("upstream request failed")
	ErrNotFound    = fmt.Errorf("not found")
	ErrRateLimited = fmt.Errorf("too many requests")
)

const (
	CategoryNotReady    = "not_ready"
	CategoryValidation  = "validation"
	CategoryUpstream    = "upstream"
	CategoryNotFound    = "not_found"
	CategoryRateLimited = "rate_limited"
	CategoryInternal    = "internal"
)

// Category returns the machine-stable category of err.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotReady):
		return CategoryNotReady
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, ErrUpstream):
		return CategoryUpstream
	default:
		return CategoryInternal
	}
}

// Terminal marks err as an exhausted upstream failure. The message is the root cause only.
func Terminal(err error) error {
	if err == nil || errors.Is(err, ErrUpstream) {
		return err
	}
	return &terminalError{cause: err}
}

type terminalError struct {
	cause error
}

func (e *terminalError) Error() string { return e.cause.Error() }

func (e *terminalError) Unwrap() []error { return []error{ErrUpstream, e.cause} }
