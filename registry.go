package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stats is a point-in-time summary of a registry.
type Stats struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Paused   int            `json:"paused"`
	Global   int            `json:"global"`
	ByEvent  map[string]int `json:"by_event"`
	ByTarget map[string]int `json:"by_target"`
}

// Info describes one active listener, for debugging.
type Info struct {
	Key     Key     `json:"key"`
	Target  string  `json:"target"`
	Event   string  `json:"event"`
	Options Options `json:"options"`
}

// Config is one entry of RegisterBatch.
type Config struct {
	Target  Target
	Event   string
	Handler Handler
	Options Options
}

// record is the registry's bookkeeping entry for one subscription.
type record struct {
	binding *Binding
	seq     uint64
	active  bool
	global  bool
	// counted is set once Register has confirmed the subscription and
	// reported it to the metrics.
	counted bool
	cancels []func()
}

// Registry tracks every listener an application subscribes with a Host.
//
// All operations are safe for concurrent use and never return errors or
// panic because of bookkeeping faults: invalid input and host failures are
// logged and reported to the WithErrorHandler callback, and the operation
// degrades to a no-op. Handlers are never run with the registry lock held,
// so a handler may register or remove listeners.
type Registry struct {
	id              string
	name            string
	host            Host
	logger          *slog.Logger
	onError         func(error)
	metrics         *registryMetrics
	tracingEnabled  bool
	recoveryEnabled bool
	cancelPending   bool

	mu        sync.Mutex
	records   map[Key]*record
	rootKeys  map[Key]struct{}
	destroyed bool
	seq       uint64

	discardOnce sync.Once
}

// New creates a registry bound to host. The registry hooks itself to the
// host's discard signal and runs DestroyAll exactly once when it fires.
func New(host Host, opts ...Option) (*Registry, error) {
	if isNil(host) {
		return nil, ErrHostRequired
	}
	o := newOptions(opts...)

	r := &Registry{
		id:              NewID(),
		name:            o.name,
		host:            host,
		logger:          o.logger,
		onError:         o.onError,
		tracingEnabled:  o.tracingEnabled,
		recoveryEnabled: o.recoveryEnabled,
		cancelPending:   o.cancelPending,
		records:         make(map[Key]*record),
		rootKeys:        make(map[Key]struct{}),
	}
	if o.metricsEnabled {
		r.metrics = newRegistryMetrics(o.name)
	}

	host.OnDiscard(func() {
		r.discardOnce.Do(func() {
			r.logger.Debug("host discarded, destroying registry")
			r.DestroyAll(context.Background())
		})
	})
	return r, nil
}

// ID returns the registry ID
func (r *Registry) ID() string {
	return r.id
}

// Name returns the registry name
func (r *Registry) Name() string {
	return r.name
}

// Host returns the host the registry subscribes against
func (r *Registry) Host() Host {
	return r.host
}

// Destroyed reports whether DestroyAll has run.
func (r *Registry) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// Len returns the number of records, active and paused.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Active reports whether key refers to an active listener.
func (r *Registry) Active(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return ok && rec.active
}

// Register subscribes handler to event on target and returns its key.
//
// The empty Key is returned, with no side effect, when the registry is
// destroyed, an argument is missing, or the host refuses the subscription.
// The failure is logged and passed to the error handler.
//
// The host is called without the registry lock held, so a host may deliver
// events to the new listener before Subscribe returns.
func (r *Registry) Register(ctx context.Context, target Target, event string, handler Handler, opts ...Options) Key {
	if err := validate(target, event, handler); err != nil {
		r.fail(ctx, "invalid_input", err)
		return ""
	}
	o := mergeOptions(opts)

	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		r.fail(ctx, "destroyed", fmt.Errorf("%w: cannot register %q", ErrRegistryDestroyed, event))
		return ""
	}
	r.seq++
	rec := &record{seq: r.seq, active: true}
	b := &Binding{
		key:     newKey(target, event, r.id, r.seq),
		target:  target,
		event:   event,
		options: o,
	}
	b.invoke = r.wrap(b, handler)
	rec.binding = b
	r.records[b.key] = rec
	r.mu.Unlock()

	if err := r.callHost(ctx, "subscribe", b, r.host.Subscribe); err != nil {
		r.mu.Lock()
		if r.records[b.key] == rec {
			delete(r.records, b.key)
		}
		r.mu.Unlock()
		r.fail(ctx, "subscribe", err)
		return ""
	}
	global := r.host.IsGlobal(target)

	r.mu.Lock()
	destroyed := r.destroyed
	present := r.records[b.key] == rec
	active := present && rec.active
	if present {
		rec.counted = true
		rec.global = global
		if global {
			r.rootKeys[b.key] = struct{}{}
		}
	}
	r.mu.Unlock()

	if !active {
		// paused, removed or destroyed while the host was subscribing; make
		// sure the host does not keep a subscription nothing tracks
		if err := r.callHost(ctx, "unsubscribe", b, r.host.Unsubscribe); err != nil {
			r.fail(ctx, "unsubscribe", err)
		}
		r.metrics.onRegistered(ctx, event)
		if present {
			r.metrics.onPaused(ctx, event)
			return b.key
		}
		r.metrics.onRemoved(ctx, event, true)
		if destroyed {
			r.fail(ctx, "destroyed", fmt.Errorf("%w: cannot register %q", ErrRegistryDestroyed, event))
			return ""
		}
		r.logger.Debug("listener removed during registration", "key", b.key, "event", event)
		return b.key
	}

	r.metrics.onRegistered(ctx, event)
	r.logger.Debug("registered listener", "key", b.key, "event", event, "target", describe(target))
	return b.key
}

// RegisterBatch registers every config in order and returns the keys of
// those that succeeded. Earlier successes are kept when a later entry fails.
func (r *Registry) RegisterBatch(ctx context.Context, configs []Config) []Key {
	keys := make([]Key, 0, len(configs))
	for _, c := range configs {
		if key := r.Register(ctx, c.Target, c.Event, c.Handler, c.Options); key.Valid() {
			keys = append(keys, key)
		}
	}
	return keys
}

// Remove unsubscribes and forgets an active listener. Unknown or paused
// keys are ignored.
func (r *Registry) Remove(ctx context.Context, key Key) {
	r.remove(ctx, key)
}

// remove reports whether this call deleted the record. The record is
// dropped under the lock and the host is called after it is released.
func (r *Registry) remove(ctx context.Context, key Key) bool {
	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok || !rec.active {
		r.mu.Unlock()
		return false
	}
	rec.active = false
	delete(r.records, key)
	delete(r.rootKeys, key)
	cancels := rec.cancels
	rec.cancels = nil
	counted := rec.counted
	r.mu.Unlock()

	err := r.callHost(ctx, "unsubscribe", rec.binding, r.host.Unsubscribe)
	if r.cancelPending {
		runAll(cancels)
	}
	if err != nil {
		r.fail(ctx, "unsubscribe", err)
	}
	if counted {
		r.metrics.onRemoved(ctx, rec.binding.event, true)
	}
	r.logger.Debug("removed listener", "key", key, "event", rec.binding.event)
	return true
}

// RemoveByTarget removes every active listener attached to target.
func (r *Registry) RemoveByTarget(ctx context.Context, target Target) {
	if isNil(target) {
		return
	}
	for _, key := range r.matching(func(b *Binding) bool { return sameTarget(b.target, target) }) {
		r.Remove(ctx, key)
	}
}

// RemoveByEvent removes every active listener for event.
func (r *Registry) RemoveByEvent(ctx context.Context, event string) {
	for _, key := range r.matching(func(b *Binding) bool { return b.event == event }) {
		r.Remove(ctx, key)
	}
}

// matching snapshots the keys of active records accepted by pred, so
// callers can mutate the registry while walking the result.
func (r *Registry) matching(pred func(*Binding) bool) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []Key
	for _, rec := range r.sorted() {
		if rec.active && pred(rec.binding) {
			keys = append(keys, rec.binding.key)
		}
	}
	return keys
}

// Pause unsubscribes an active listener but keeps its record for Resume.
func (r *Registry) Pause(ctx context.Context, key Key) {
	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok || !rec.active {
		r.mu.Unlock()
		return
	}
	rec.active = false
	cancels := slices.Clone(rec.cancels)
	counted := rec.counted
	r.mu.Unlock()

	err := r.callHost(ctx, "unsubscribe", rec.binding, r.host.Unsubscribe)
	if r.cancelPending {
		runAll(cancels)
	}
	if err != nil {
		r.fail(ctx, "pause", err)
	}
	if counted {
		r.metrics.onPaused(ctx, rec.binding.event)
	}
	r.logger.Debug("paused listener", "key", key)
}

// Resume re-subscribes a paused listener with its original event, handler
// and options. Active or unknown keys are ignored. If the host refuses, the
// listener stays paused.
func (r *Registry) Resume(ctx context.Context, key Key) {
	r.mu.Lock()
	rec, ok := r.records[key]
	if !ok || rec.active || r.destroyed {
		r.mu.Unlock()
		return
	}
	// active before the host call, so deliveries made inside Subscribe
	// reach the handler and a concurrent Resume is a no-op
	rec.active = true
	r.mu.Unlock()

	if err := r.callHost(ctx, "subscribe", rec.binding, r.host.Subscribe); err != nil {
		r.mu.Lock()
		if r.records[key] == rec {
			rec.active = false
		}
		r.mu.Unlock()
		r.fail(ctx, "resume", err)
		return
	}

	r.mu.Lock()
	current := r.records[key] == rec && rec.active
	counted := rec.counted
	r.mu.Unlock()
	if !current {
		// paused, removed or destroyed while the host was subscribing
		if err := r.callHost(ctx, "unsubscribe", rec.binding, r.host.Unsubscribe); err != nil {
			r.fail(ctx, "resume", err)
		}
		return
	}

	if counted {
		r.metrics.onResumed(ctx, rec.binding.event)
	}
	r.logger.Debug("resumed listener", "key", key)
}

// DestroyAll marks the registry destroyed, unsubscribes every active
// listener and clears all records. Later registrations are rejected.
// Calling it again has no effect.
func (r *Registry) DestroyAll(ctx context.Context) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true

	type teardown struct {
		binding *Binding
		active  bool
		counted bool
	}
	var cancels []func()
	records := r.sorted()
	pending := make([]teardown, 0, len(records))
	for _, rec := range records {
		pending = append(pending, teardown{binding: rec.binding, active: rec.active, counted: rec.counted})
		rec.active = false
		cancels = append(cancels, rec.cancels...)
		rec.cancels = nil
	}
	clear(r.records)
	clear(r.rootKeys)
	r.mu.Unlock()

	clearDefault(r)
	var failures int
	for _, t := range pending {
		if !t.active {
			continue
		}
		if err := r.callHost(ctx, "unsubscribe", t.binding, r.host.Unsubscribe); err != nil {
			failures++
			r.fail(ctx, "destroy", err)
		}
	}
	if r.cancelPending {
		runAll(cancels)
	}
	for _, t := range pending {
		if t.counted {
			r.metrics.onRemoved(ctx, t.binding.event, t.active)
		}
	}
	r.logger.Debug("registry destroyed", "listeners", len(pending), "failures", failures)
}

// Stats returns counts of the registry's records.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Total:    len(r.records),
		Global:   len(r.rootKeys),
		ByEvent:  make(map[string]int),
		ByTarget: make(map[string]int),
	}
	for _, rec := range r.records {
		if rec.active {
			s.Active++
		} else {
			s.Paused++
		}
		s.ByEvent[rec.binding.event]++
		kind := rec.binding.target.Kind()
		if kind == "" {
			kind = "unknown"
		}
		s.ByTarget[kind]++
	}
	return s
}

// ListActive describes the active listeners in registration order.
func (r *Registry) ListActive() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.records))
	for _, rec := range r.sorted() {
		if !rec.active {
			continue
		}
		infos = append(infos, Info{
			Key:     rec.binding.key,
			Target:  describe(rec.binding.target),
			Event:   rec.binding.event,
			Options: rec.binding.options,
		})
	}
	return infos
}

// onCancel attaches fn to key; it runs when the listener is removed,
// paused or destroyed and WithCancelPending is enabled.
func (r *Registry) onCancel(key Key, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		rec.cancels = append(rec.cancels, fn)
	}
}

// sorted returns records in creation order. Caller must hold r.mu.
func (r *Registry) sorted() []*record {
	records := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b *record) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return records
}

// wrap builds the function stored in the binding: it drops deliveries to
// inactive records, removes Once listeners before running them, and adds
// recovery, tracing and metrics around the caller's handler.
func (r *Registry) wrap(b *Binding, handler Handler) Handler {
	return func(ctx context.Context, ev Event) {
		if b.options.Once {
			// only the delivery that removes the record may run it
			if !r.remove(ctx, b.key) {
				return
			}
		} else if !r.Active(b.key) {
			return
		}
		if r.recoveryEnabled {
			defer r.recoverPanic(ctx, b.key, b.event)
		}
		if r.tracingEnabled {
			var span trace.Span
			ctx, span = otel.Tracer(r.name).Start(ctx, b.event+".handle",
				trace.WithAttributes(
					attribute.String(spanKeyListenerKey, string(b.key)),
					attribute.String(spanKeyListenerEvent, b.event),
					attribute.String(spanKeyListenerTarget, describe(b.target)),
					attribute.String(spanKeyRegistry, r.name)),
				trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()
		}
		r.metrics.onInvoked(ctx, b.event)
		handler(contextWithListener(ctx, r, b), ev)
	}
}

// recoverPanic must be deferred directly. It logs and reports a handler
// panic instead of letting it unwind into the host.
func (r *Registry) recoverPanic(ctx context.Context, key Key, event string) {
	if p := recover(); p != nil {
		r.logger.Error("handler panic recovered",
			"key", key,
			"event", event,
			"error", p,
			"stack", string(debug.Stack()))
		r.fail(ctx, "panic", fmt.Errorf("%w: %v", ErrHandlerPanic, p))
	}
}

// protect runs fn with the registry's panic recovery. Used for deliveries
// that happen outside the host's dispatch, such as debounce timers.
func (r *Registry) protect(ctx context.Context, key Key, event string, fn func()) {
	if r.recoveryEnabled {
		defer r.recoverPanic(ctx, key, event)
	}
	fn()
}

// callHost runs a host operation, converting errors and panics into a
// *SubscribeError.
func (r *Registry) callHost(ctx context.Context, op string, b *Binding, fn func(context.Context, *Binding) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHostPanic, p)
		}
		if err != nil {
			err = &SubscribeError{Op: op, Key: b.key, Event: b.event, Err: err}
		}
	}()
	return fn(ctx, b)
}

// fail logs and reports a swallowed error.
func (r *Registry) fail(ctx context.Context, reason string, err error) {
	r.logger.Warn("listener operation failed", "reason", reason, "error", err)
	r.metrics.onFailed(ctx, reason)
	r.onError(err)
}

func validate(target Target, event string, handler Handler) error {
	switch {
	case isNil(target):
		return fmt.Errorf("%w: target is nil", ErrInvalidTarget)
	case event == "":
		return fmt.Errorf("%w: event name is empty", ErrInvalidEvent)
	case handler == nil:
		return fmt.Errorf("%w: handler is nil", ErrInvalidHandler)
	}
	return nil
}

// sameTarget compares targets without panicking on non-comparable
// dynamic types.
func sameTarget(a, b Target) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// IsInvalidInput reports whether err was caused by a Register call with a
// missing target, event name or handler.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidTarget) || errors.Is(err, ErrInvalidEvent) || errors.Is(err, ErrInvalidHandler)
}
