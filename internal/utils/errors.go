package utils

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

// StatusError is returned for responses with status >= 400.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %d for %s", e.StatusCode, e.URL)
}

// ContentTypeError means the server answered a chunk with a different resource
// than the one the download started with.
type ContentTypeError struct {
	Expected   string
	Received   string
	StatusCode int
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("content type mismatch: received %q instead of %q (status %d)", e.Received, e.Expected, e.StatusCode)
}

type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("actual size %d doesn't match expected size %d", e.Actual, e.Expected)
}

// IsTransient reports whether err is a socket-level failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
