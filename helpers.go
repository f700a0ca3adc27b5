package listener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// delegatedEvent reports the matched descendant as the current target.
type delegatedEvent struct {
	Event
	current Target
}

func (e delegatedEvent) CurrentTarget() Target {
	return e.current
}

// Unwrap returns the event delivered by the host.
func (e delegatedEvent) Unwrap() Event {
	return e.Event
}

// Delegate attaches one capture-phase listener to the element matching
// containerSelector. When an event fires inside it, the nearest ancestor of
// the originating element matching descendantSelector is looked up; if that
// element lies within the container, handler runs with it as the event's
// CurrentTarget.
//
// The host must implement Querier and its targets Element. The empty Key is
// returned when the container cannot be resolved.
func Delegate(ctx context.Context, r *Registry, containerSelector, descendantSelector, event string, handler Handler) Key {
	q, ok := r.host.(Querier)
	if !ok {
		r.fail(ctx, "delegate", ErrQueryUnsupported)
		return ""
	}
	if handler == nil {
		r.fail(ctx, "invalid_input", fmt.Errorf("%w: handler is nil", ErrInvalidHandler))
		return ""
	}
	found := q.QuerySelector(containerSelector)
	container, ok := found.(Element)
	if isNil(found) || !ok {
		r.fail(ctx, "delegate", fmt.Errorf("%w: %q", ErrContainerNotFound, containerSelector))
		return ""
	}

	delegated := func(ctx context.Context, ev Event) {
		origin, ok := ev.Target().(Element)
		if !ok || isNil(origin) {
			return
		}
		match := origin.Closest(descendantSelector)
		if isNil(match) || !container.Contains(match) {
			return
		}
		handler(ctx, delegatedEvent{Event: ev, current: match})
	}
	return r.Register(ctx, container, event, delegated, Options{Capture: true})
}

// Once registers handler for a single firing. The listener is removed from
// the registry and the host before handler runs, and an atomic guard keeps
// concurrent dispatches from delivering twice.
func Once(ctx context.Context, r *Registry, target Target, event string, handler Handler) Key {
	if handler == nil {
		return r.Register(ctx, target, event, nil)
	}
	var fired atomic.Bool
	once := func(ctx context.Context, ev Event) {
		if fired.CompareAndSwap(false, true) {
			handler(ctx, ev)
		}
	}
	return r.Register(ctx, target, event, once, Options{Once: true})
}

// Debounced delivers only the last firing of a burst, after delay has
// passed without another firing. A delay <= 0 uses DefaultDebounceDelay.
//
// Removing the key stops new firings from being scheduled, but a delivery
// already pending still runs unless the registry was created with
// WithCancelPending(true).
func Debounced(ctx context.Context, r *Registry, target Target, event string, handler Handler, delay time.Duration) Key {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	if handler == nil {
		return r.Register(ctx, target, event, nil)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
		key   Key
	)
	debounced := func(ctx context.Context, ev Event) {
		// ctx belongs to the dispatch that is about to return
		ctx = context.WithoutCancel(ctx)
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		k := key
		timer = time.AfterFunc(delay, func() {
			r.protect(ctx, k, event, func() { handler(ctx, ev) })
		})
	}

	// the host may deliver before Register returns, so mu is not held
	// across it
	k := r.Register(ctx, target, event, debounced)
	mu.Lock()
	key = k
	mu.Unlock()
	if k.Valid() {
		r.onCancel(k, func() {
			mu.Lock()
			defer mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
		})
	}
	return k
}

// Throttled delivers at most one firing per delay window; firings inside
// the window are dropped, not queued. A delay <= 0 uses
// DefaultThrottleDelay.
func Throttled(ctx context.Context, r *Registry, target Target, event string, handler Handler, delay time.Duration) Key {
	if delay <= 0 {
		delay = DefaultThrottleDelay
	}
	if handler == nil {
		return r.Register(ctx, target, event, nil)
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	throttled := func(ctx context.Context, ev Event) {
		if limiter.Allow() {
			handler(ctx, ev)
		}
	}
	return r.Register(ctx, target, event, throttled)
}
