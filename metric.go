package listener

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	spanKeyListenerKey    = "listener.key"
	spanKeyListenerEvent  = "listener.event"
	spanKeyListenerTarget = "listener.target"
	spanKeyRegistry       = "listener.registry"
)

// Logger returns a logger with the given component name
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// registryMetrics holds the OpenTelemetry instruments of one registry.
// A nil *registryMetrics records nothing.
type registryMetrics struct {
	registered metric.Int64Counter
	removed    metric.Int64Counter
	invoked    metric.Int64Counter
	failed     metric.Int64Counter
	active     metric.Int64UpDownCounter
}

func newRegistryMetrics(name string) *registryMetrics {
	meter := otel.Meter(name)
	registered, _ := meter.Int64Counter("listener.registered",
		metric.WithDescription("Total number of listeners registered"),
		metric.WithUnit("{listener}"))
	removed, _ := meter.Int64Counter("listener.removed",
		metric.WithDescription("Total number of listeners removed"),
		metric.WithUnit("{listener}"))
	invoked, _ := meter.Int64Counter("listener.invoked",
		metric.WithDescription("Total number of handler invocations"),
		metric.WithUnit("{call}"))
	failed, _ := meter.Int64Counter("listener.failed",
		metric.WithDescription("Failures swallowed by the registry"),
		metric.WithUnit("{error}"))
	active, _ := meter.Int64UpDownCounter("listener.active",
		metric.WithDescription("Listeners currently subscribed with the host"),
		metric.WithUnit("{listener}"))
	return &registryMetrics{
		registered: registered,
		removed:    removed,
		invoked:    invoked,
		failed:     failed,
		active:     active,
	}
}

func eventAttr(event string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("event", event))
}

func (m *registryMetrics) onRegistered(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.registered.Add(ctx, 1, eventAttr(event))
	m.active.Add(ctx, 1, eventAttr(event))
}

func (m *registryMetrics) onRemoved(ctx context.Context, event string, wasActive bool) {
	if m == nil {
		return
	}
	m.removed.Add(ctx, 1, eventAttr(event))
	if wasActive {
		m.active.Add(ctx, -1, eventAttr(event))
	}
}

func (m *registryMetrics) onPaused(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1, eventAttr(event))
}

func (m *registryMetrics) onResumed(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.active.Add(ctx, 1, eventAttr(event))
}

func (m *registryMetrics) onInvoked(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.invoked.Add(ctx, 1, eventAttr(event))
}

func (m *registryMetrics) onFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
