package dom

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/listener"
)

// trace records handler calls in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	tr.calls = append(tr.calls, s)
	tr.mu.Unlock()
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

func (tr *trace) handler(label string) listener.Handler {
	return func(ctx context.Context, ev listener.Event) {
		e, _ := AsEvent(ev)
		tr.add(label + ":" + e.Phase().String())
	}
}

func newRegistry(t *testing.T, d *Document) (*listener.Registry, *[]error) {
	t.Helper()
	var mu sync.Mutex
	errs := &[]error{}
	r := listener.TestRegistry(d, listener.WithErrorHandler(func(err error) {
		mu.Lock()
		*errs = append(*errs, err)
		mu.Unlock()
	}))
	return r, errs
}

func TestDispatchOrder(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)
	r, _ := newRegistry(t, d)
	tr := &trace{}
	a := nodes["a"]

	r.Register(ctx, d.Window(), "click", tr.handler("window-bubble"))
	r.Register(ctx, d.Window(), "click", tr.handler("window-capture"), listener.Options{Capture: true})
	r.Register(ctx, nodes["ul"], "click", tr.handler("ul-capture"), listener.Options{Capture: true})
	r.Register(ctx, nodes["ul"], "click", tr.handler("ul-bubble"))
	r.Register(ctx, a, "click", tr.handler("a-bubble"))
	r.Register(ctx, a, "click", tr.handler("a-capture"), listener.Options{Capture: true})
	r.Register(ctx, d.Body(), "keydown", tr.handler("body-keydown"))

	if !d.Dispatch(ctx, a, "click", nil) {
		t.Error("expected default not prevented")
	}
	want := []string{
		"window-capture:capturing",
		"ul-capture:capturing",
		"a-bubble:at-target",
		"a-capture:at-target",
		"ul-bubble:bubbling",
		"window-bubble:bubbling",
	}
	if diff := cmp.Diff(want, tr.get()); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

func TestStopPropagation(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)
	r, _ := newRegistry(t, d)
	tr := &trace{}

	r.Register(ctx, nodes["ul"], "click", func(ctx context.Context, ev listener.Event) {
		tr.add("ul-1")
		e, _ := AsEvent(ev)
		e.StopPropagation()
	})
	r.Register(ctx, nodes["ul"], "click", func(context.Context, listener.Event) { tr.add("ul-2") })
	r.Register(ctx, nodes["nav"], "click", func(context.Context, listener.Event) { tr.add("nav") })

	d.Dispatch(ctx, nodes["a"], "click", nil)
	if diff := cmp.Diff([]string{"ul-1", "ul-2"}, tr.get()); diff != "" {
		t.Errorf("StopPropagation mismatch (-want +got):\n%s", diff)
	}

	t.Run("immediate", func(t *testing.T) {
		tr := &trace{}
		target := nodes["go"]
		r.Register(ctx, target, "focus", func(ctx context.Context, ev listener.Event) {
			tr.add("first")
			e, _ := AsEvent(ev)
			e.StopImmediatePropagation()
		})
		r.Register(ctx, target, "focus", func(context.Context, listener.Event) { tr.add("second") })
		r.Register(ctx, d.Body(), "focus", func(context.Context, listener.Event) { tr.add("body") })

		d.Dispatch(ctx, target, "focus", nil)
		if diff := cmp.Diff([]string{"first"}, tr.get()); diff != "" {
			t.Errorf("StopImmediatePropagation mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPreventDefault(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)
	r, _ := newRegistry(t, d)
	prevent := func(ctx context.Context, ev listener.Event) {
		e, _ := AsEvent(ev)
		e.PreventDefault()
	}

	r.Register(ctx, d.Window(), "wheel", prevent, listener.Options{Passive: true})
	if !d.Dispatch(ctx, nodes["go"], "wheel", nil) {
		t.Error("PreventDefault in a passive listener must be ignored")
	}

	r.Register(ctx, nodes["go"], "submit", prevent)
	if d.Dispatch(ctx, nodes["go"], "submit", nil) {
		t.Error("expected default prevented")
	}
}

func TestOnceListener(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)
	r, _ := newRegistry(t, d)

	calls := 0
	key := r.Register(ctx, nodes["go"], "click", func(context.Context, listener.Event) { calls++ }, listener.Options{Once: true})
	d.Dispatch(ctx, nodes["go"], "click", nil)
	d.Dispatch(ctx, nodes["go"], "click", nil)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if r.Active(key) || d.ListenerCount(nodes["go"]) != 0 {
		t.Error("once listener should be gone from registry and document")
	}
}

func TestMutationDuringDispatch(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)
	r, _ := newRegistry(t, d)
	tr := &trace{}
	target := nodes["button"]

	var second listener.Key
	r.Register(ctx, target, "click", func(ctx context.Context, ev listener.Event) {
		tr.add("first")
		r.Remove(ctx, second)
		r.Register(ctx, target, "click", func(context.Context, listener.Event) { tr.add("late") })
	})
	second = r.Register(ctx, target, "click", func(context.Context, listener.Event) { tr.add("second") })

	d.Dispatch(ctx, target, "click", nil)
	if diff := cmp.Diff([]string{"first"}, tr.get()); diff != "" {
		t.Errorf("first dispatch mismatch (-want +got):\n%s", diff)
	}
	if got := r.Stats().Active; got != 2 {
		t.Errorf("expected 2 active listeners, got %d", got)
	}
}

func TestDelegate(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)
	r, errs := newRegistry(t, d)

	var got []listener.Target
	var origins []listener.Target
	key := listener.Delegate(ctx, r, "#list", "li", "click", func(ctx context.Context, ev listener.Event) {
		got = append(got, ev.CurrentTarget())
		origins = append(origins, ev.Target())
		if _, ok := AsEvent(ev); !ok {
			t.Error("AsEvent should see through delegated events")
		}
	})
	if !key.Valid() {
		t.Fatalf("Delegate failed: %v", *errs)
	}
	if info := r.ListActive()[0]; !info.Options.Capture || info.Target != "#list" {
		t.Errorf("expected capture listener on #list, got %+v", info)
	}

	d.Dispatch(ctx, nodes["a"], "click", nil)
	d.Dispatch(ctx, nodes["li2"], "click", nil)
	d.Dispatch(ctx, nodes["ul"], "click", nil)
	d.Dispatch(ctx, nodes["go"], "click", nil)

	want := []listener.Target{nodes["li1"], nodes["li2"]}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected delegated targets %v, got %v", want, got)
	}
	if origins[0] != nodes["a"] {
		t.Errorf("expected origin a.link, got %v", origins[0])
	}

	t.Run("li outside the container", func(t *testing.T) {
		outer := d.CreateElement("li", "outer")
		inner := d.CreateElement("ul", "nested")
		if err := d.Body().AppendChild(outer); err != nil {
			t.Fatal(err)
		}
		if err := outer.AppendChild(inner); err != nil {
			t.Fatal(err)
		}
		// the nearest li of a click inside #list is always inside it, so
		// point the container at the nested list instead
		r.RemoveByEvent(ctx, "click")
		got = nil
		listener.Delegate(ctx, r, "#nested", "li", "click", func(ctx context.Context, ev listener.Event) {
			got = append(got, ev.CurrentTarget())
		})
		d.Dispatch(ctx, inner, "click", nil)
		if len(got) != 0 {
			t.Errorf("ancestor li outside container must not match, got %v", got)
		}
	})

	t.Run("missing container", func(t *testing.T) {
		n := len(*errs)
		if key := listener.Delegate(ctx, r, "#nope", "li", "click", func(context.Context, listener.Event) {}); key.Valid() {
			t.Error("expected empty key")
		}
		if len(*errs) != n+1 || !errors.Is((*errs)[n], listener.ErrContainerNotFound) {
			t.Errorf("expected ErrContainerNotFound, got %v", *errs)
		}
	})
}

func TestHostContract(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)

	for _, n := range []*Node{d.Window(), d.Root(), d.Body()} {
		if !d.IsGlobal(n) {
			t.Errorf("%s should be global", n)
		}
	}
	if d.IsGlobal(nodes["nav"]) {
		t.Error("nav should not be global")
	}

	other := New()
	b := listener.NewBinding("k", other.Body(), "click", func(context.Context, listener.Event) {}, listener.Options{})
	if err := d.Subscribe(ctx, b); !errors.Is(err, ErrForeignTarget) {
		t.Errorf("expected ErrForeignTarget, got %v", err)
	}

	b = listener.NewBinding("k", nodes["go"], "click", func(context.Context, listener.Event) {}, listener.Options{})
	_ = d.Subscribe(ctx, b)
	_ = d.Subscribe(ctx, b)
	if d.ListenerCount(nodes["go"]) != 1 {
		t.Error("duplicate subscribe must not add a second listener")
	}
	if err := d.Unsubscribe(ctx, b); err != nil {
		t.Errorf("Unsubscribe: %v", err)
	}
	if err := d.Unsubscribe(ctx, b); err != nil {
		t.Errorf("second Unsubscribe should be a no-op, got %v", err)
	}
}

func TestListenerPanic(t *testing.T) {
	ctx := context.Background()
	var got []error
	d := New(WithErrorHandler(func(err error) { got = append(got, err) }))

	b := listener.NewBinding("k", d.Body(), "click", func(context.Context, listener.Event) { panic("boom") }, listener.Options{})
	_ = d.Subscribe(ctx, b)
	d.Dispatch(ctx, d.Body(), "click", nil)

	if len(got) != 1 || !IsListenerPanic(got[0]) {
		t.Errorf("expected recovered listener panic, got %v", got)
	}
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	d, nodes := fixture(t)
	r, _ := newRegistry(t, d)

	var sawUnload bool
	r.Register(ctx, d.Window(), "beforeunload", func(context.Context, listener.Event) { sawUnload = true })
	r.Register(ctx, nodes["go"], "click", func(context.Context, listener.Event) {})

	d.Discard(ctx)
	if !sawUnload {
		t.Error("expected beforeunload before teardown")
	}
	if !r.Destroyed() {
		t.Error("expected registry to be destroyed")
	}
	if d.ListenerCount(nodes["go"]) != 0 || d.ListenerCount(d.Window()) != 0 {
		t.Error("expected every listener to be detached")
	}

	d.Discard(ctx)
	b := listener.NewBinding("k", nodes["go"], "click", func(context.Context, listener.Event) {}, listener.Options{})
	if err := d.Subscribe(ctx, b); !errors.Is(err, ErrDocumentDetached) {
		t.Errorf("expected ErrDocumentDetached, got %v", err)
	}
}
