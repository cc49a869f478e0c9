package core

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by bus operations after the bus has been closed.
	ErrClosed = errors.New("transport closed")

	// ErrUnknownChannel is returned when a response is addressed to a channel
	// kind the bus has no queue for.
	ErrUnknownChannel = errors.New("unknown channel kind")

	// ErrQueueFull is returned by an enqueue whose target queue has no free
	// slot. The value is not delivered.
	ErrQueueFull = errors.New("queue full")
)

// TransportError reports a failed bus send or receive. It affects only the
// single enqueue/dequeue attempt; callers log and drop.
type TransportError struct {
	Op      string
	Session SessionID
	Err     error
}

func (e *TransportError) Error() string {
	if e.Session.IsZero() {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Session, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CompletionError reports a failed completion engine call (timeout, provider
// error, malformed result).
type CompletionError struct {
	Session SessionID
	Err     error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion for %s failed: %v", e.Session, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// RegistryError reports a session creation or lookup failure. It is fatal to
// the single request only.
type RegistryError struct {
	Op      string
	Session SessionID
	Err     error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry %s %s: %v", e.Op, e.Session, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }
