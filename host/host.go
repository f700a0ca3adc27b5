// Package host holds the pieces shared by the broker-backed hosts in
// host/nats and host/redis: the Channel target, the Message event, subject
// naming, discard hooks and health reporting.
//
// A broker host maps every listener binding to one broker subscription on
// the subject "<prefix>.<channel>.<event>". Publishing to that subject from
// any process fires the listeners:
//
//	h, _ := nats.New(conn)
//	r, _ := listener.New(h)
//	r.Register(ctx, host.NewChannel("cart"), "add", handler)
//
//	h.Publish(ctx, host.NewChannel("cart"), "add", map[string]any{"sku": "A1"})
package host

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rbaliyan/listener"
	"github.com/rbaliyan/listener/codec"
)

// DefaultPrefix is the first subject token used by broker hosts.
var DefaultPrefix = "ui"

// Host errors
var (
	ErrHostClosed     = errors.New("host is closed")
	ErrInvalidTarget  = errors.New("target is not a host.Channel")
	ErrInvalidSubject = errors.New("invalid subject token")
)

// Channel is a named broker target. Channels are compared by value, so two
// Channel values with the same name and flag are the same target.
type Channel struct {
	ID       string
	IsGlobal bool
}

// NewChannel creates a non-global channel.
func NewChannel(name string) Channel {
	return Channel{ID: name}
}

// GlobalChannel creates a channel reported as global by broker hosts.
func GlobalChannel(name string) Channel {
	return Channel{ID: name, IsGlobal: true}
}

// Kind returns "channel"
func (c Channel) Kind() string { return "channel" }

// Name returns the channel name
func (c Channel) Name() string { return c.ID }

// AsChannel returns t as a Channel.
func AsChannel(t listener.Target) (Channel, error) {
	switch c := t.(type) {
	case Channel:
		return c, nil
	case *Channel:
		if c != nil {
			return *c, nil
		}
	}
	return Channel{}, fmt.Errorf("%w: %T", ErrInvalidTarget, t)
}

// Subject builds "<prefix>.<channel>.<event>". Tokens must be non-empty and
// free of whitespace, '.', '*' and '>'.
func Subject(prefix string, ch Channel, event string) (string, error) {
	for _, tok := range []string{prefix, ch.ID, event} {
		if tok == "" || strings.ContainsAny(tok, " \t\r\n.*>") {
			return "", fmt.Errorf("%w: %q", ErrInvalidSubject, tok)
		}
	}
	return prefix + "." + ch.ID + "." + event, nil
}

// Message is the listener.Event delivered by broker hosts.
type Message struct {
	Envelope *codec.Envelope
	Channel  Channel
	Subject  string
}

// Type returns the envelope's event type
func (m *Message) Type() string { return m.Envelope.Type }

// Target returns the channel the message arrived on
func (m *Message) Target() listener.Target { return m.Channel }

// CurrentTarget returns the channel the message arrived on
func (m *Message) CurrentTarget() listener.Target { return m.Channel }

// Payload returns the decoded envelope payload
func (m *Message) Payload() any { return m.Envelope.Payload }

// Metadata returns the envelope metadata
func (m *Message) Metadata() map[string]string { return m.Envelope.Metadata }

// ID returns the envelope ID
func (m *Message) ID() string { return m.Envelope.ID }

// Discarder runs registered hooks once.
type Discarder struct {
	mu    sync.Mutex
	hooks []func()
	once  sync.Once
}

// Add registers fn
func (d *Discarder) Add(fn func()) {
	d.mu.Lock()
	d.hooks = append(d.hooks, fn)
	d.mu.Unlock()
}

// Fire runs the hooks registered so far. Only the first call has an effect.
func (d *Discarder) Fire() {
	d.once.Do(func() {
		d.mu.Lock()
		hooks := make([]func(), len(d.hooks))
		copy(hooks, d.hooks)
		d.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	})
}

// HealthStatus represents the health state of a host
type HealthStatus string

const (
	// HealthStatusHealthy indicates the host is functioning normally
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusUnhealthy indicates the host is not functioning
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult contains detailed health information
type HealthCheckResult struct {
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Latency   time.Duration  `json:"latency,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// IsHealthy returns true if the status is healthy
func (h *HealthCheckResult) IsHealthy() bool {
	return h.Status == HealthStatusHealthy
}

// Compile-time checks
var (
	_ listener.Target = Channel{}
	_ listener.Event  = (*Message)(nil)
)
