// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sampling

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. None of them is fatal to the process.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: no sensor/provider available when sampling starts.
	KindConfiguration
	// KindStorageUnavailable: the log directory or file cannot be opened.
	KindStorageUnavailable
	// KindIO: a row could not be written or flushed.
	KindIO
	// KindProtocolViolation: a reading for another stream or with a malformed payload.
	KindProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindIO:
		return "io"
	case KindProtocolViolation:
		return "protocol_violation"
	default:
		return "unknown"
	}
}

// Error is the error type returned and reported by pipelines and sinks.
type Error struct {
	Kind   Kind
	Stream string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Stream != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Stream, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind. A nil err yields nil.
func NewError(kind Kind, stream, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stream: stream, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// tag attaches stream to err. An *Error keeps its kind; anything else gets kind.
func tag(kind Kind, stream, op string, err error) error {
	if e, ok := err.(*Error); ok {
		if e.Stream != "" {
			return err
		}
		c := *e
		c.Stream = stream
		return &c
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return NewError(kind, stream, op, err)
}

// StreamOf returns the stream of the first *Error in err's chain, or "".
func StreamOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stream
	}
	return ""
}
