package listener

import "context"

// Target is anything a listener can be attached to: an element, the window,
// a broker channel.
type Target interface {
	// Kind is the category of the target ("window", "document", "div", ...).
	// Stats are grouped by it.
	Kind() string
	// Name is a short human readable description used in keys and in
	// ListActive output. May be empty.
	Name() string
}

// Event is a single firing delivered to a Handler.
type Event interface {
	// Type is the event name, e.g. "click".
	Type() string
	// Target is where the event originated.
	Target() Target
	// CurrentTarget is the target whose listener is running. For delegated
	// listeners it is the matched descendant.
	CurrentTarget() Target
	// Payload carries host specific data (mouse position, decoded message).
	Payload() any
}

// Handler receives events.
type Handler func(ctx context.Context, ev Event)

// Host is the environment the registry subscribes against.
//
// Implementations must identify a subscription by the *Binding pointer: the
// same pointer is passed to Unsubscribe, and again to Subscribe on resume.
// Hosts must not invoke handlers while holding locks that Subscribe or
// Unsubscribe need, since handlers may re-enter the registry.
type Host interface {
	// Subscribe creates exactly one live subscription for b.
	Subscribe(ctx context.Context, b *Binding) error
	// Unsubscribe removes the live subscription for b. Unknown bindings are
	// a no-op.
	Unsubscribe(ctx context.Context, b *Binding) error
	// IsGlobal reports whether t is one of the host's global singletons.
	IsGlobal(t Target) bool
	// OnDiscard registers fn to run when the host is about to be discarded.
	OnDiscard(fn func())
}

// Querier is implemented by hosts that can resolve selectors.
type Querier interface {
	QuerySelector(selector string) Target
}

// Element is implemented by targets that live in a tree.
type Element interface {
	Target
	// Closest returns the nearest inclusive ancestor matching selector, or nil.
	Closest(selector string) Target
	// Contains reports whether other is this element or one of its descendants.
	Contains(other Target) bool
}

// Options control how the host installs a subscription. The registry passes
// them through unchanged.
type Options struct {
	// Capture installs the listener for the capture phase.
	Capture bool `json:"capture,omitempty"`
	// Once asks the host to drop the subscription after the first firing.
	// The registry also removes its record when such a listener fires.
	Once bool `json:"once,omitempty"`
	// Passive declares that the handler never prevents the default action.
	Passive bool `json:"passive,omitempty"`
}

// mergeOptions folds a variadic options list into one value. A flag set in
// any entry is set in the result.
func mergeOptions(opts []Options) Options {
	var o Options
	for _, opt := range opts {
		o.Capture = o.Capture || opt.Capture
		o.Once = o.Once || opt.Once
		o.Passive = o.Passive || opt.Passive
	}
	return o
}

// Binding is the registry's view of one subscription, handed to the Host.
// Hosts use it to route events: Target, Event and Options describe where
// to subscribe, Invoke delivers an event to the caller's handler.
type Binding struct {
	key     Key
	target  Target
	event   string
	options Options
	invoke  Handler
}

// NewBinding creates a standalone binding. It is mainly useful for host
// implementations and their tests; registry bindings are created by Register.
func NewBinding(key Key, target Target, event string, handler Handler, opts Options) *Binding {
	return &Binding{
		key:     key,
		target:  target,
		event:   event,
		options: opts,
		invoke:  handler,
	}
}

// Key returns the registry key of the binding.
func (b *Binding) Key() Key { return b.key }

// Target returns the target the binding is attached to.
func (b *Binding) Target() Target { return b.target }

// Event returns the event name.
func (b *Binding) Event() string { return b.event }

// Options returns the subscription options.
func (b *Binding) Options() Options { return b.options }

// Invoke delivers ev to the bound handler.
func (b *Binding) Invoke(ctx context.Context, ev Event) {
	if b.invoke != nil {
		b.invoke(ctx, ev)
	}
}

// describe returns the description used in keys and listings.
func describe(t Target) string {
	if name := t.Name(); name != "" {
		return name
	}
	if kind := t.Kind(); kind != "" {
		return kind
	}
	return "unknown"
}
