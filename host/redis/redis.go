// Package redis provides a listener.Host backed by Redis Pub/Sub.
//
// Every binding becomes one Pub/Sub subscription on the channel
// "<prefix>.<channel>.<event>", read by its own goroutine. Delivery is
// at-most-once, like NATS Core.
//
// Redis has no connection lifecycle callback, so discard is signalled by
// calling Close.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/listener"
	"github.com/rbaliyan/listener/codec"
	"github.com/rbaliyan/listener/host"
	"github.com/redis/go-redis/v9"
)

// Client defines the Redis operations used by the host.
// Supports *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Ping(ctx context.Context) *redis.StatusCmd
}

// ErrClientRequired is returned when no Redis client is provided
var ErrClientRequired = errors.New("redis client is required")

// pubsub is the subset of *redis.PubSub used by the host.
type pubsub interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// subscribeFunc opens a confirmed subscription on channel.
type subscribeFunc func(ctx context.Context, channel string) (pubsub, error)

// Host implements listener.Host over Redis Pub/Sub.
type Host struct {
	status    int32
	client    Client
	subscribe subscribeFunc
	codec     codec.Codec
	prefix    string
	logger    *slog.Logger
	onError   func(error)

	mu   sync.Mutex
	subs map[*listener.Binding]pubsub

	discard host.Discarder
}

// New creates a host on a pre-initialized client. The caller keeps
// ownership of the client.
func New(client Client, opts ...Option) (*Host, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	o := newOptions(opts...)
	h := &Host{
		status:  1,
		client:  client,
		codec:   o.codec,
		prefix:  o.prefix,
		logger:  o.logger,
		onError: o.onError,
		subs:    make(map[*listener.Binding]pubsub),
	}
	h.subscribe = h.subscribeClient
	return h, nil
}

// subscribeClient waits for the subscription confirmation so a publish
// right after Subscribe returns is not missed.
func (h *Host) subscribeClient(ctx context.Context, channel string) (pubsub, error) {
	ps := h.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

func (h *Host) isOpen() bool {
	return atomic.LoadInt32(&h.status) == 1
}

// Subscribe opens one Pub/Sub subscription for b. Subscribing the same
// binding twice is a no-op.
func (h *Host) Subscribe(ctx context.Context, b *listener.Binding) error {
	if !h.isOpen() {
		return host.ErrHostClosed
	}
	ch, err := host.AsChannel(b.Target())
	if err != nil {
		return err
	}
	channel, err := host.Subject(h.prefix, ch, b.Event())
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[b]; ok {
		return nil
	}
	ps, err := h.subscribe(ctx, channel)
	if err != nil {
		return err
	}
	h.subs[b] = ps
	go h.consume(b, ch, ps)
	h.logger.Debug("subscribed", "channel", channel, "key", b.Key())
	return nil
}

// Unsubscribe closes the Pub/Sub subscription of b. Unknown bindings are a
// no-op.
func (h *Host) Unsubscribe(ctx context.Context, b *listener.Binding) error {
	h.mu.Lock()
	ps, ok := h.subs[b]
	delete(h.subs, b)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return ps.Close()
}

// consume delivers messages of ps to b until ps is closed.
func (h *Host) consume(b *listener.Binding, ch host.Channel, ps pubsub) {
	ctx := context.Background()
	for msg := range ps.Channel() {
		env, err := h.codec.Decode([]byte(msg.Payload))
		if err != nil {
			h.logger.Warn("dropping undecodable message", "channel", msg.Channel, "error", err)
			h.onError(err)
			continue
		}

		h.mu.Lock()
		current, live := h.subs[b]
		live = live && current == ps
		if live && b.Options().Once {
			delete(h.subs, b)
		}
		h.mu.Unlock()
		if !live {
			return
		}
		if b.Options().Once {
			if err := ps.Close(); err != nil {
				h.onError(err)
			}
		}

		b.Invoke(ctx, &host.Message{Envelope: env, Channel: ch, Subject: msg.Channel})
		if b.Options().Once {
			return
		}
	}
}

// Publish encodes payload in an envelope and publishes it on the channel
// of (target, event).
func (h *Host) Publish(ctx context.Context, target host.Channel, event string, payload any) error {
	if !h.isOpen() {
		return host.ErrHostClosed
	}
	channel, err := host.Subject(h.prefix, target, event)
	if err != nil {
		return err
	}
	env := codec.NewEnvelope(target.ID, event, payload)
	data, err := h.codec.Encode(env)
	if err != nil {
		return err
	}
	if err := h.client.Publish(ctx, channel, data).Err(); err != nil {
		h.onError(err)
		return err
	}
	h.logger.Debug("published event", "channel", channel, "id", env.ID)
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

// Close runs the discard hooks, then closes any subscription left. The
// client is not closed.
func (h *Host) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&h.status, 1, 0) {
		return nil
	}
	h.discard.Fire()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*listener.Binding]pubsub)
	h.mu.Unlock()

	var errs []error
	for _, ps := range subs {
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.logger.Debug("host closed", "leftover", len(subs))
	return errors.Join(errs...)
}

// Health performs a health check on the Redis host
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

	pingStart := time.Now()
	err := h.client.Ping(ctx).Err()
	pingLatency := time.Since(pingStart)

	if err != nil {
		result.Status = host.HealthStatusUnhealthy
		result.Message = fmt.Sprintf("redis ping failed: %v", err)
		result.Latency = time.Since(start)
		result.Details["type"] = "redis"
		result.Details["ping_error"] = err.Error()
		return result
	}

	result.Status = host.HealthStatusHealthy
	result.Message = "redis host is healthy"
	result.Latency = time.Since(start)
	result.Details["type"] = "redis"
	result.Details["ping_latency_ms"] = pingLatency.Milliseconds()
	result.Details["subscriptions"] = h.Len()
	return result
}

// Compile-time check
var _ listener.Host = (*Host)(nil)
