package listener

import (
	"context"
	"sync/atomic"
)

// defaultRegistry is the process-wide registry created by Init.
var defaultRegistry atomic.Pointer[Registry]

// Init creates the process-wide registry for host. It returns
// ErrAlreadyInitialized while a previous one is still alive; once that
// registry is destroyed (explicitly or by the host's discard signal) Init
// may be called again.
//
// Code that can receive a *Registry explicitly should prefer New and pass
// the registry along; Init and Default serve effect modules that are wired
// up independently of each other.
func Init(ctx context.Context, host Host, opts ...Option) (*Registry, error) {
	r, err := New(host, opts...)
	if err != nil {
		return nil, err
	}
	if !defaultRegistry.CompareAndSwap(nil, r) {
		r.DestroyAll(ctx)
		return nil, ErrAlreadyInitialized
	}
	r.logger.Debug("default registry initialized", "id", r.id)
	return r, nil
}

// Default returns the process-wide registry, or nil if Init has not been
// called or the registry was destroyed.
func Default() *Registry {
	return defaultRegistry.Load()
}

// clearDefault releases the process-wide slot if r holds it.
func clearDefault(r *Registry) {
	defaultRegistry.CompareAndSwap(r, nil)
}
