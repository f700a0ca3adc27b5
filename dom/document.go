// Package dom provides an in-memory document that implements listener.Host.
//
// A Document holds a window, a document node and an html/body element pair.
// Elements are created with CreateElement and attached with AppendChild.
// Dispatch walks the propagation path from the window to the target the
// way a browser does: capture listeners outer to inner, every listener at
// the target, then bubble listeners inner to outer.
//
//	doc := dom.New()
//	list := doc.CreateElement("ul", "list")
//	doc.Body().AppendChild(list)
//
//	r, _ := listener.New(doc)
//	listener.Delegate(ctx, r, "#list", "li", "click", handler)
//
//	doc.Dispatch(ctx, item, "click", nil)
//
// Discard dispatches "beforeunload" on the window and then signals every
// registry bound to the document, exactly once.
package dom

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/rbaliyan/listener"
)

// entry is one live subscription on a node.
type entry struct {
	binding *listener.Binding
	removed bool
}

// Document is an in-memory node tree with event dispatch.
type Document struct {
	mu        sync.RWMutex
	window    *Node
	root      *Node
	html      *Node
	body      *Node
	listeners map[*Node][]*entry
	hooks     []func()
	discarded bool

	discardOnce     sync.Once
	logger          *slog.Logger
	onError         func(error)
	recoveryEnabled bool
}

// New creates a document containing <html><body></body></html>.
func New(opts ...Option) *Document {
	o := newOptions(opts...)
	d := &Document{
		listeners:       make(map[*Node][]*entry),
		logger:          o.logger,
		onError:         o.onError,
		recoveryEnabled: o.recoveryEnabled,
	}
	d.window = &Node{doc: d, typ: windowNode}
	d.root = &Node{doc: d, typ: documentNode}
	d.html = d.CreateElement("html", "")
	d.body = d.CreateElement("body", o.bodyID)
	d.root.children = []*Node{d.html}
	d.html.parent = d.root
	d.html.children = []*Node{d.body}
	d.body.parent = d.html
	return d
}

// Window returns the window node
func (d *Document) Window() *Node { return d.window }

// Root returns the document node
func (d *Document) Root() *Node { return d.root }

// Body returns the body element
func (d *Document) Body() *Node { return d.body }

// CreateElement creates a detached element. Empty class names are skipped.
func (d *Document) CreateElement(tag, id string, classes ...string) *Node {
	n := &Node{
		doc: d,
		typ: elementNode,
		tag: strings.ToLower(tag),
		id:  id,
	}
	for _, c := range classes {
		if c != "" && !slices.Contains(n.classes, c) {
			n.classes = append(n.classes, c)
		}
	}
	return n
}

// QuerySelector returns the first element in document order matching
// selector, or nil. It implements listener.Querier.
func (d *Document) QuerySelector(selector string) listener.Target {
	if found := d.Find(selector); found != nil {
		return found
	}
	return nil
}

// Find is QuerySelector returning a *Node.
func (d *Document) Find(selector string) *Node {
	sel, err := parseSelector(selector)
	if err != nil {
		d.logger.Debug("invalid selector", "selector", selector, "error", err)
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found *Node
	d.walk(d.root, func(n *Node) bool {
		if sel.match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// QuerySelectorAll returns every element matching selector in document
// order.
func (d *Document) QuerySelectorAll(selector string) []*Node {
	sel, err := parseSelector(selector)
	if err != nil {
		d.logger.Debug("invalid selector", "selector", selector, "error", err)
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var found []*Node
	d.walk(d.root, func(n *Node) bool {
		if sel.match(n) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// walk visits n and its descendants in document order until fn returns
// false. Caller must hold the document lock.
func (d *Document) walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !d.walk(c, fn) {
			return false
		}
	}
	return true
}

// Subscribe attaches b to its target node. Subscribing the same binding
// twice is a no-op.
func (d *Document) Subscribe(ctx context.Context, b *listener.Binding) error {
	n, err := d.node(b.Target())
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.discarded {
		return ErrDocumentDetached
	}
	for _, e := range d.listeners[n] {
		if e.binding == b {
			return nil
		}
	}
	d.listeners[n] = append(d.listeners[n], &entry{binding: b})
	return nil
}

// Unsubscribe detaches b. Unknown bindings are a no-op.
func (d *Document) Unsubscribe(ctx context.Context, b *listener.Binding) error {
	n, err := d.node(b.Target())
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop(n, b)
	return nil
}

// drop removes b from n's listeners; caller must hold d.mu
func (d *Document) drop(n *Node, b *listener.Binding) {
	entries := d.listeners[n]
	for i, e := range entries {
		if e.binding == b {
			e.removed = true
			entries = slices.Delete(entries, i, i+1)
			break
		}
	}
	if len(entries) == 0 {
		delete(d.listeners, n)
		return
	}
	d.listeners[n] = entries
}

// IsGlobal reports whether t is the window, the document or the body.
func (d *Document) IsGlobal(t listener.Target) bool {
	n, ok := t.(*Node)
	return ok && (n == d.window || n == d.root || n == d.body)
}

// OnDiscard registers fn to run when Discard is called.
func (d *Document) OnDiscard(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, fn)
}

// Discard dispatches "beforeunload" on the window, then runs the discard
// hooks. Only the first call has an effect; later subscriptions fail with
// ErrDocumentDetached.
func (d *Document) Discard(ctx context.Context) {
	d.discardOnce.Do(func() {
		d.Dispatch(ctx, d.window, "beforeunload", nil)

		d.mu.Lock()
		d.discarded = true
		hooks := slices.Clone(d.hooks)
		d.mu.Unlock()

		d.logger.Debug("document discarded", "hooks", len(hooks))
		for _, fn := range hooks {
			fn()
		}
	})
}

// ListenerCount returns the number of live subscriptions on n.
func (d *Document) ListenerCount(n *Node) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[n])
}

// Dispatch fires an event of type eventType at target and returns false if
// a listener prevented the default action.
func (d *Document) Dispatch(ctx context.Context, target *Node, eventType string, payload any) bool {
	if target == nil || target.doc != d {
		return true
	}
	d.mu.RLock()
	path := target.path()
	d.mu.RUnlock()

	ev := &Event{typ: eventType, target: target, payload: payload}
	last := len(path) - 1

	ev.phase = PhaseCapturing
	for _, n := range path[:last] {
		if d.invoke(ctx, n, ev, func(o listener.Options) bool { return o.Capture }) {
			return !ev.defaultPrevented
		}
	}

	ev.phase = PhaseAtTarget
	if d.invoke(ctx, target, ev, func(listener.Options) bool { return true }) {
		return !ev.defaultPrevented
	}

	ev.phase = PhaseBubbling
	for i := last - 1; i >= 0; i-- {
		if d.invoke(ctx, path[i], ev, func(o listener.Options) bool { return !o.Capture }) {
			break
		}
	}
	ev.phase = PhaseNone
	ev.current = nil
	return !ev.defaultPrevented
}

// invoke runs the listeners of n for ev accepted by phase and reports
// whether propagation was stopped. The listener list is snapshotted first;
// entries removed while it runs are skipped.
func (d *Document) invoke(ctx context.Context, n *Node, ev *Event, phase func(listener.Options) bool) bool {
	d.mu.RLock()
	var entries []*entry
	for _, e := range d.listeners[n] {
		if e.binding.Event() == ev.typ && phase(e.binding.Options()) {
			entries = append(entries, e)
		}
	}
	d.mu.RUnlock()

	ev.current = n
	for _, e := range entries {
		opts := e.binding.Options()
		d.mu.Lock()
		if e.removed {
			d.mu.Unlock()
			continue
		}
		if opts.Once {
			d.drop(n, e.binding)
		}
		d.mu.Unlock()

		ev.passive = opts.Passive
		d.call(ctx, e.binding, ev)
		ev.passive = false
		if ev.stoppedImmediate {
			break
		}
	}
	return ev.stopped
}

func (d *Document) call(ctx context.Context, b *listener.Binding, ev *Event) {
	if d.recoveryEnabled {
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("listener panic recovered",
					"key", b.Key(),
					"event", ev.typ,
					"error", p,
					"stack", string(debug.Stack()))
				d.onError(fmt.Errorf("%w: %v", ErrListenerPanic, p))
			}
		}()
	}
	b.Invoke(ctx, ev)
}

// node resolves t to a node of this document.
func (d *Document) node(t listener.Target) (*Node, error) {
	n, ok := t.(*Node)
	if !ok || n == nil || n.doc != d {
		return nil, fmt.Errorf("%w: %v", ErrForeignTarget, t)
	}
	return n, nil
}

// Compile-time interface checks
var (
	_ listener.Host    = (*Document)(nil)
	_ listener.Querier = (*Document)(nil)
)
