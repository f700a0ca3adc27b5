package dom

import (
	"log/slog"

	"github.com/rbaliyan/listener"
)

// options holds configuration for a document (unexported)
type options struct {
	logger          *slog.Logger
	onError         func(error)
	recoveryEnabled bool
	bodyID          string
}

// Option configures a Document
type Option func(*options)

// WithLogger sets the logger for the document
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorHandler sets the callback receiving panics recovered while
// dispatching.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithRecovery enables/disables panic recovery around each listener during
// Dispatch. Default is true. Bindings created by a listener.Registry
// already recover on their own.
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recoveryEnabled = enabled
	}
}

// WithBodyID sets the id attribute of the body element.
func WithBodyID(id string) Option {
	return func(o *options) {
		o.bodyID = id
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		onError:         func(error) {},
		recoveryEnabled: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = listener.Logger("dom")
	}
	return o
}
