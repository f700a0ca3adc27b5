package listener

import (
	"errors"
	"fmt"
)

// Registry errors.
//
// None of these are returned from registry operations. They are logged and
// passed to the handler installed with WithErrorHandler, so callers can
// inspect them with errors.Is when diagnosing why a listener did not wire up.
var (
	ErrInvalidTarget      = errors.New("invalid target")
	ErrInvalidEvent       = errors.New("invalid event name")
	ErrInvalidHandler     = errors.New("invalid handler")
	ErrRegistryDestroyed  = errors.New("registry is destroyed")
	ErrHostRequired       = errors.New("host is required")
	ErrAlreadyInitialized = errors.New("default registry already initialized")
	ErrQueryUnsupported   = errors.New("host does not support selector queries")
	ErrContainerNotFound  = errors.New("container not found")
	ErrHostPanic          = errors.New("host panicked")
	ErrHandlerPanic       = errors.New("handler panicked")
)

// SubscribeError reports a host failure while subscribing or unsubscribing
// a binding.
type SubscribeError struct {
	Op    string
	Key   Key
	Event string
	Err   error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("%s %q (key %s): %v", e.Op, e.Event, e.Key, e.Err)
}

func (e *SubscribeError) Unwrap() error {
	return e.Err
}

// IsSubscribeError checks if an error was produced by a host operation.
func IsSubscribeError(err error) bool {
	var subErr *SubscribeError
	return errors.As(err, &subErr)
}
