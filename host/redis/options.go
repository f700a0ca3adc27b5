package redis

import (
	"log/slog"

	"github.com/rbaliyan/listener"
	"github.com/rbaliyan/listener/codec"
	"github.com/rbaliyan/listener/host"
)

// options holds configuration for the host (unexported)
type options struct {
	codec   codec.Codec
	prefix  string
	logger  *slog.Logger
	onError func(error)
}

// Option configures the Redis host
type Option func(*options)

// WithCodec sets the codec for envelope serialization
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithPrefix sets the first channel token. Default is host.DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorHandler sets the callback for decode and publish failures
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		codec:   codec.Default(),
		prefix:  host.DefaultPrefix,
		onError: func(error) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = listener.Logger("host>redis")
	}
	return o
}
