package listener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if cond() {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOnce(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)
	target := NewTestTarget("button", "buy")

	var calls atomic.Int32
	key := Once(ctx, r, target, "click", func(context.Context, Event) { calls.Add(1) })
	if !key.Valid() {
		t.Fatal("expected key")
	}
	for i := 0; i < 3; i++ {
		host.Fire(ctx, target, "click", i)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls.Load())
	}
	if r.Len() != 0 {
		t.Errorf("expected record to be gone, got %d", r.Len())
	}

	t.Run("rapid registrations get distinct keys", func(t *testing.T) {
		a := Once(ctx, r, target, "click", noop)
		b := Once(ctx, r, target, "click", noop)
		if !a.Valid() || !b.Valid() || a == b {
			t.Errorf("expected two distinct keys, got %q and %q", a, b)
		}
	})

	t.Run("concurrent dispatch delivers once", func(t *testing.T) {
		var n atomic.Int32
		key := Once(ctx, r, target, "keyup", func(context.Context, Event) { n.Add(1) })
		b := host.live[len(host.live)-1]
		if b.Key() != key {
			t.Fatalf("expected last binding to be %s", key)
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Invoke(ctx, &TestEvent{Name: "keyup", Origin: target})
			}()
		}
		wg.Wait()
		if n.Load() != 1 {
			t.Errorf("expected 1 delivery, got %d", n.Load())
		}
	})

	t.Run("nil handler", func(t *testing.T) {
		r, _, errs := newTestRegistry(t)
		if key := Once(ctx, r, target, "click", nil); key.Valid() {
			t.Error("expected empty key")
		}
		if got := errs.all(); len(got) != 1 || !errors.Is(got[0], ErrInvalidHandler) {
			t.Errorf("expected ErrInvalidHandler, got %v", got)
		}
	})
}

func TestDebounced(t *testing.T) {
	ctx := context.Background()
	target := NewTestTarget("input", "search")

	t.Run("delivers last firing of a burst", func(t *testing.T) {
		r, host, _ := newTestRegistry(t)
		var mu sync.Mutex
		var got []any
		Debounced(ctx, r, target, "input", func(ctx context.Context, ev Event) {
			mu.Lock()
			got = append(got, ev.Payload())
			mu.Unlock()
		}, 30*time.Millisecond)

		for i := 0; i < 5; i++ {
			host.Fire(ctx, target, "input", i)
		}
		if !waitFor(t, time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) > 0
		}) {
			t.Fatal("timeout waiting for debounced delivery")
		}
		time.Sleep(60 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(got) != 1 || got[0] != 4 {
			t.Errorf("expected single delivery of payload 4, got %v", got)
		}
	})

	t.Run("zero delay uses default", func(t *testing.T) {
		r, host, _ := newTestRegistry(t)
		orig := DefaultDebounceDelay
		DefaultDebounceDelay = 20 * time.Millisecond
		defer func() { DefaultDebounceDelay = orig }()

		var calls atomic.Int32
		Debounced(ctx, r, target, "input", func(context.Context, Event) { calls.Add(1) }, 0)
		host.Fire(ctx, target, "input", nil)
		if calls.Load() != 0 {
			t.Error("delivery should be deferred")
		}
		if !waitFor(t, time.Second, func() bool { return calls.Load() == 1 }) {
			t.Error("timeout waiting for delivery")
		}
	})

	t.Run("pending delivery survives remove by default", func(t *testing.T) {
		r, host, _ := newTestRegistry(t)
		var calls atomic.Int32
		key := Debounced(ctx, r, target, "input", func(context.Context, Event) { calls.Add(1) }, 20*time.Millisecond)
		host.Fire(ctx, target, "input", nil)
		r.Remove(ctx, key)

		if !waitFor(t, time.Second, func() bool { return calls.Load() == 1 }) {
			t.Error("expected the scheduled delivery to run")
		}
		host.Fire(ctx, target, "input", nil)
		time.Sleep(50 * time.Millisecond)
		if calls.Load() != 1 {
			t.Errorf("removed listener scheduled again, calls=%d", calls.Load())
		}
	})

	t.Run("cancel pending", func(t *testing.T) {
		host := NewRecordingHost()
		r := TestRegistry(host, WithCancelPending(true))
		var calls atomic.Int32
		key := Debounced(ctx, r, target, "input", func(context.Context, Event) { calls.Add(1) }, 20*time.Millisecond)
		host.Fire(ctx, target, "input", nil)
		r.Remove(ctx, key)

		time.Sleep(60 * time.Millisecond)
		if calls.Load() != 0 {
			t.Errorf("expected pending delivery to be cancelled, calls=%d", calls.Load())
		}
	})

	t.Run("panic in deferred delivery is recovered", func(t *testing.T) {
		r, host, errs := newTestRegistry(t)
		Debounced(ctx, r, target, "input", func(context.Context, Event) { panic("late") }, 10*time.Millisecond)
		host.Fire(ctx, target, "input", nil)

		if !waitFor(t, time.Second, func() bool { return len(errs.all()) == 1 }) {
			t.Fatal("timeout waiting for recovered panic")
		}
		if !errors.Is(errs.all()[0], ErrHandlerPanic) {
			t.Errorf("expected ErrHandlerPanic, got %v", errs.all()[0])
		}
	})
}

func TestThrottled(t *testing.T) {
	ctx := context.Background()
	r, host, _ := newTestRegistry(t)
	target := NewTestTarget("window", "")

	var calls atomic.Int32
	key := Throttled(ctx, r, target, "scroll", func(context.Context, Event) { calls.Add(1) }, 50*time.Millisecond)
	if !key.Valid() {
		t.Fatal("expected key")
	}

	for i := 0; i < 5; i++ {
		host.Fire(ctx, target, "scroll", i)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call inside the window, got %d", calls.Load())
	}

	time.Sleep(70 * time.Millisecond)
	host.Fire(ctx, target, "scroll", nil)
	if calls.Load() != 2 {
		t.Errorf("expected a second call after the window, got %d", calls.Load())
	}

	t.Run("nil handler", func(t *testing.T) {
		r, _, errs := newTestRegistry(t)
		if key := Throttled(ctx, r, target, "scroll", nil, 0); key.Valid() {
			t.Error("expected empty key")
		}
		if got := errs.all(); len(got) != 1 || !errors.Is(got[0], ErrInvalidHandler) {
			t.Errorf("expected ErrInvalidHandler, got %v", got)
		}
	})
}

func TestDelegateRequiresQuerier(t *testing.T) {
	r, host, errs := newTestRegistry(t)
	key := Delegate(context.Background(), r, "#list", "li", "click", noop)
	if key.Valid() {
		t.Error("expected empty key")
	}
	if len(host.Calls()) != 0 {
		t.Error("host should not be called")
	}
	if got := errs.all(); len(got) != 1 || !errors.Is(got[0], ErrQueryUnsupported) {
		t.Errorf("expected ErrQueryUnsupported, got %v", got)
	}
}
