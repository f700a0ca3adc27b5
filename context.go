package listener

import "context"

const (
	listenerContextKey contextKey = iota
)

type listenerContextData struct {
	key      Key
	event    string
	target   Target
	registry *Registry
}

// contextKey
type contextKey int

// contextWithListener stores the running listener in ctx
func contextWithListener(ctx context.Context, r *Registry, b *Binding) context.Context {
	return context.WithValue(ctx, listenerContextKey, &listenerContextData{
		key:      b.key,
		event:    b.event,
		target:   b.target,
		registry: r,
	})
}

// ContextKey returns the key of the listener running with ctx, so a
// handler can remove or pause itself:
//
//	r.Register(ctx, t, "click", func(ctx context.Context, ev listener.Event) {
//	    listener.ContextRegistry(ctx).Remove(ctx, listener.ContextKey(ctx))
//	})
func ContextKey(ctx context.Context) Key {
	s, ok := ctx.Value(listenerContextKey).(*listenerContextData)
	if ok {
		return s.key
	}
	return ""
}

// ContextEvent returns the event name the running listener was registered for
func ContextEvent(ctx context.Context) string {
	s, ok := ctx.Value(listenerContextKey).(*listenerContextData)
	if ok {
		return s.event
	}
	return ""
}

// ContextTarget returns the target the running listener is attached to
func ContextTarget(ctx context.Context) Target {
	s, ok := ctx.Value(listenerContextKey).(*listenerContextData)
	if ok {
		return s.target
	}
	return nil
}

// ContextRegistry returns the registry that owns the running listener
func ContextRegistry(ctx context.Context) *Registry {
	s, ok := ctx.Value(listenerContextKey).(*listenerContextData)
	if ok {
		return s.registry
	}
	return nil
}
