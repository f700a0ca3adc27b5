// Package nats provides a listener.Host backed by NATS Core pub/sub.
//
// Every binding becomes one NATS subscription on
// "<prefix>.<channel>.<event>". Delivery is at-most-once: events published
// while a listener is paused are not replayed on resume.
//
// The host signals discard when the NATS connection is closed, or when
// Close is called.
package nats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rbaliyan/listener"
	"github.com/rbaliyan/listener/codec"
	"github.com/rbaliyan/listener/host"
)

// ErrConnRequired is returned when no NATS connection is provided
var ErrConnRequired = errors.New("nats connection is required")

// conn is the subset of *nats.Conn used by the host.
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (subscription, error)
	Status() nats.Status
	ConnectedUrl() string
	SetClosedHandler(cb func())
}

type subscription interface {
	Unsubscribe() error
}

// natsConn adapts *nats.Conn to conn
type natsConn struct {
	*nats.Conn
}

func (c natsConn) Subscribe(subject string, cb nats.MsgHandler) (subscription, error) {
	return c.Conn.Subscribe(subject, cb)
}

// SetClosedHandler chains cb after any closed handler already installed
// on the connection.
func (c natsConn) SetClosedHandler(cb func()) {
	prev := c.Conn.ClosedHandler()
	c.Conn.SetClosedHandler(func(nc *nats.Conn) {
		if prev != nil {
			prev(nc)
		}
		cb()
	})
}

// Host implements listener.Host over NATS Core.
type Host struct {
	status  int32
	conn    conn
	codec   codec.Codec
	prefix  string
	logger  *slog.Logger
	onError func(error)

	mu   sync.Mutex
	subs map[*listener.Binding]subscription

	discard host.Discarder
}

// New creates a host on a connected *nats.Conn. The caller keeps ownership
// of the connection.
func New(nc *nats.Conn, opts ...Option) (*Host, error) {
	if nc == nil {
		return nil, ErrConnRequired
	}
	return newHost(natsConn{nc}, opts...), nil
}

func newHost(c conn, opts ...Option) *Host {
	o := newOptions(opts...)
	h := &Host{
		status:  1,
		conn:    c,
		codec:   o.codec,
		prefix:  o.prefix,
		logger:  o.logger,
		onError: o.onError,
		subs:    make(map[*listener.Binding]subscription),
	}
	c.SetClosedHandler(func() {
		h.logger.Debug("nats connection closed")
		h.Close(context.Background())
	})
	return h
}

func (h *Host) isOpen() bool {
	return atomic.LoadInt32(&h.status) == 1
}

// Subscribe opens one NATS subscription for b. Subscribing the same
// binding twice is a no-op.
func (h *Host) Subscribe(ctx context.Context, b *listener.Binding) error {
	if !h.isOpen() {
		return host.ErrHostClosed
	}
	ch, err := host.AsChannel(b.Target())
	if err != nil {
		return err
	}
	subject, err := host.Subject(h.prefix, ch, b.Event())
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[b]; ok {
		return nil
	}
	sub, err := h.conn.Subscribe(subject, h.handler(b, ch))
	if err != nil {
		return err
	}
	h.subs[b] = sub
	h.logger.Debug("subscribed", "subject", subject, "key", b.Key())
	return nil
}

// Unsubscribe closes the NATS subscription of b. Unknown bindings are a
// no-op.
func (h *Host) Unsubscribe(ctx context.Context, b *listener.Binding) error {
	h.mu.Lock()
	sub, ok := h.subs[b]
	delete(h.subs, b)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

// handler decodes messages for b and delivers them. Once bindings are
// unsubscribed before their first delivery; later messages already in
// flight are dropped.
func (h *Host) handler(b *listener.Binding, ch host.Channel) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx := context.Background()
		env, err := h.codec.Decode(msg.Data)
		if err != nil {
			h.logger.Warn("dropping undecodable message", "subject", msg.Subject, "error", err)
			h.onError(err)
			return
		}

		h.mu.Lock()
		sub, live := h.subs[b]
		if live && b.Options().Once {
			delete(h.subs, b)
		}
		h.mu.Unlock()
		if !live {
			return
		}
		if b.Options().Once {
			if err := sub.Unsubscribe(); err != nil {
				h.onError(err)
			}
		}

		b.Invoke(ctx, &host.Message{Envelope: env, Channel: ch, Subject: msg.Subject})
	}
}

// Publish encodes payload in an envelope and sends it to the subject of
// (target, event).
func (h *Host) Publish(ctx context.Context, target host.Channel, event string, payload any) error {
	if !h.isOpen() {
		return host.ErrHostClosed
	}
	subject, err := host.Subject(h.prefix, target, event)
	if err != nil {
		return err
	}
	env := codec.NewEnvelope(target.ID, event, payload)
	data, err := h.codec.Encode(env)
	if err != nil {
		return err
	}
	if err := h.conn.Publish(subject, data); err != nil {
		h.onError(err)
		return err
	}
	h.logger.Debug("published event", "subject", subject, "id", env.ID)
	return nil
}

// IsGlobal reports whether t is a global channel.
func (h *Host) IsGlobal(t listener.Target) bool {
	ch, err := host.AsChannel(t)
	return err == nil && ch.IsGlobal
}

// OnDiscard registers fn to run when the host closes.
func (h *Host) OnDiscard(fn func()) {
	h.discard.Add(fn)
}

// Len returns the number of open subscriptions.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close runs the discard hooks, then drops any subscription left. The NATS
// connection is not closed.
func (h *Host) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&h.status, 1, 0) {
		return nil
	}
	h.discard.Fire()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*listener.Binding]subscription)
	h.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	h.logger.Debug("host closed", "leftover", len(subs))
	return errors.Join(errs...)
}

// Health performs a health check on the NATS host
func (h *Host) Health(ctx context.Context) *host.HealthCheckResult {
	start := time.Now()

	result := &host.HealthCheckResult{
		CheckedAt: start,
		Details:   make(map[string]any),
	}

	if !h.isOpen() {
		result.Status = host.HealthStatusUnhealthy
		result.Message = "host is closed"
		result.Latency = time.Since(start)
		return result
	}

	status := h.conn.Status()
	if status != nats.CONNECTED {
		result.Status = host.HealthStatusUnhealthy
		result.Message = "nats connection not healthy"
		result.Details["connection_status"] = status.String()
		result.Latency = time.Since(start)
		return result
	}

	result.Status = host.HealthStatusHealthy
	result.Message = "nats host is healthy"
	result.Latency = time.Since(start)
	result.Details["type"] = "nats"
	result.Details["connection_status"] = status.String()
	result.Details["server_url"] = h.conn.ConnectedUrl()
	result.Details["subscriptions"] = h.Len()
	return result
}

// Compile-time check
var _ listener.Host = (*Host)(nil)
