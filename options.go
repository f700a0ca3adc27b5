package listener

import (
	"log/slog"
	"time"
)

var (
	// DefaultDebounceDelay is used by Debounced when delay <= 0.
	DefaultDebounceDelay = 250 * time.Millisecond

	// DefaultThrottleDelay is used by Throttled when delay <= 0.
	DefaultThrottleDelay = 100 * time.Millisecond

	// DefaultRegistryName names the registry in logs, metrics and spans.
	DefaultRegistryName = "listener"
)

// options holds configuration for a registry (unexported)
type options struct {
	name            string
	logger          *slog.Logger
	onError         func(error)
	metricsEnabled  bool
	tracingEnabled  bool
	recoveryEnabled bool
	cancelPending   bool
}

// Option configures a Registry
type Option func(*options)

// WithName sets the registry name used for the logger component, the
// OpenTelemetry meter and tracer.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets a custom logger for the registry
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorHandler sets a callback receiving every failure the registry
// swallows: invalid input, host errors, recovered panics.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithMetrics enables/disables OpenTelemetry metrics. Default is true.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithTracing enables/disables OpenTelemetry spans around handler
// invocations. Default is true.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithRecovery enables/disables panic recovery in handlers. Default is true.
// Recovery should always be enabled, can be disabled for testing.
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recoveryEnabled = enabled
	}
}

// WithCancelPending makes Remove, Pause and DestroyAll stop deferred
// deliveries scheduled by Debounced. Default is false: a delivery already
// scheduled when its key is removed still runs once.
func WithCancelPending(enabled bool) Option {
	return func(o *options) {
		o.cancelPending = enabled
	}
}

// newOptions creates options with defaults and applies provided options
func newOptions(opts ...Option) *options {
	o := &options{
		name:            DefaultRegistryName,
		onError:         func(error) {},
		metricsEnabled:  true,
		tracingEnabled:  true,
		recoveryEnabled: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = Logger("registry>" + o.name)
	}
	return o
}
