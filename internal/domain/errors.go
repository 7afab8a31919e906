package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidModel indicates a model or variable violates its invariants.
	ErrInvalidModel = errors.New("invalid model")

	// ErrUnknownDistribution indicates a distribution name outside the closed set.
	ErrUnknownDistribution = errors.New("unknown distribution")
)

// DecodeError reports a payload that could not be decoded into a domain
// value. Decode errors never self-correct on redelivery.
type DecodeError struct {
	// Entity is "model", "scenario" or "result".
	Entity string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Entity, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConnectionError reports that the broker could not be reached.
// It is the only error that stops a process at startup.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PublishError reports a message that could not be written to a channel.
type PublishError struct {
	Channel string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Channel, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsPublishError reports whether err wraps a PublishError.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}
