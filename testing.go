package listener

import (
	"context"
	"slices"
	"sync"
	"time"
)

// TestRegistry creates a registry for tests with tracing and metrics
// disabled. Recovery stays on so handler panics surface through the error
// handler. Panics if host is nil (test setup error).
//
// Example:
//
//	host := listener.NewRecordingHost()
//	r := listener.TestRegistry(host)
func TestRegistry(host Host, opts ...Option) *Registry {
	opts = append([]Option{WithTracing(false), WithMetrics(false)}, opts...)
	r, err := New(host, opts...)
	if err != nil {
		panic("listener.TestRegistry: " + err.Error())
	}
	return r
}

// TestTarget is a minimal comparable Target.
type TestTarget struct {
	ID       string
	TypeName string
}

// Kind returns the target type
func (t *TestTarget) Kind() string { return t.TypeName }

// Name returns the target ID
func (t *TestTarget) Name() string { return t.ID }

// NewTestTarget creates a target with the given kind and name.
func NewTestTarget(kind, name string) *TestTarget {
	return &TestTarget{ID: name, TypeName: kind}
}

// TestEvent is a minimal Event implementation.
type TestEvent struct {
	Name    string
	Origin  Target
	Current Target
	Data    any
}

func (e *TestEvent) Type() string          { return e.Name }
func (e *TestEvent) Target() Target        { return e.Origin }
func (e *TestEvent) CurrentTarget() Target { return e.Current }
func (e *TestEvent) Payload() any          { return e.Data }

// HostCall is one Subscribe or Unsubscribe call seen by a RecordingHost.
type HostCall struct {
	Op        string
	Key       Key
	Event     string
	Options   Options
	Timestamp time.Time
}

// RecordingHost is an in-memory Host that records every call and lets tests
// fire events at live bindings.
type RecordingHost struct {
	mu             sync.Mutex
	live           []*Binding
	calls          []HostCall
	globals        map[Target]struct{}
	discard        []func()
	subscribeErr   error
	unsubscribeErr error
}

// NewRecordingHost creates an empty recording host. Targets passed in
// globals are reported as global singletons.
func NewRecordingHost(globals ...Target) *RecordingHost {
	h := &RecordingHost{
		globals: make(map[Target]struct{}),
	}
	for _, g := range globals {
		h.globals[g] = struct{}{}
	}
	return h
}

// FailSubscribe makes the following Subscribe calls return err (nil resets).
func (h *RecordingHost) FailSubscribe(err error) {
	h.mu.Lock()
	h.subscribeErr = err
	h.mu.Unlock()
}

// FailUnsubscribe makes the following Unsubscribe calls return err (nil
// resets). The binding is still dropped.
func (h *RecordingHost) FailUnsubscribe(err error) {
	h.mu.Lock()
	h.unsubscribeErr = err
	h.mu.Unlock()
}

// Subscribe records the call and marks b live
func (h *RecordingHost) Subscribe(ctx context.Context, b *Binding) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("subscribe", b)
	if h.subscribeErr != nil {
		return h.subscribeErr
	}
	if !slices.Contains(h.live, b) {
		h.live = append(h.live, b)
	}
	return nil
}

// Unsubscribe records the call and drops b
func (h *RecordingHost) Unsubscribe(ctx context.Context, b *Binding) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("unsubscribe", b)
	h.drop(b)
	return h.unsubscribeErr
}

// IsGlobal reports whether t was passed to NewRecordingHost
func (h *RecordingHost) IsGlobal(t Target) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.globals[t]
	return ok
}

// OnDiscard stores fn until Discard is called
func (h *RecordingHost) OnDiscard(fn func()) {
	h.mu.Lock()
	h.discard = append(h.discard, fn)
	h.mu.Unlock()
}

// Discard runs the registered discard hooks.
func (h *RecordingHost) Discard() {
	h.mu.Lock()
	hooks := make([]func(), len(h.discard))
	copy(hooks, h.discard)
	h.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Fire delivers an event to every live binding for (target, event) in
// subscription order and returns how many bindings were matched. Bindings
// are snapshotted first, so handlers may subscribe or unsubscribe.
func (h *RecordingHost) Fire(ctx context.Context, target Target, event string, payload any) int {
	h.mu.Lock()
	var matched []*Binding
	for _, b := range h.live {
		if b.Event() == event && sameTarget(b.Target(), target) {
			matched = append(matched, b)
		}
	}
	h.mu.Unlock()

	for _, b := range matched {
		if b.Options().Once {
			h.mu.Lock()
			h.drop(b)
			h.mu.Unlock()
		}
		b.Invoke(ctx, &TestEvent{Name: event, Origin: target, Current: target, Data: payload})
	}
	return len(matched)
}

// Live returns the number of live subscriptions.
func (h *RecordingHost) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Calls returns a copy of all recorded calls
func (h *RecordingHost) Calls() []HostCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]HostCall, len(h.calls))
	copy(result, h.calls)
	return result
}

// CountFor returns the number of recorded calls with the given op
func (h *RecordingHost) CountFor(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, c := range h.calls {
		if c.Op == op {
			count++
		}
	}
	return count
}

// Reset clears recorded calls
func (h *RecordingHost) Reset() {
	h.mu.Lock()
	h.calls = nil
	h.mu.Unlock()
}

// drop forgets b; caller must hold h.mu
func (h *RecordingHost) drop(b *Binding) {
	h.live = slices.DeleteFunc(h.live, func(l *Binding) bool { return l == b })
}

// record appends a call; caller must hold h.mu
func (h *RecordingHost) record(op string, b *Binding) {
	h.calls = append(h.calls, HostCall{
		Op:        op,
		Key:       b.Key(),
		Event:     b.Event(),
		Options:   b.Options(),
		Timestamp: time.Now(),
	})
}

// Compile-time interface check
var _ Host = (*RecordingHost)(nil)
