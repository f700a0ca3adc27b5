// Package listener provides a registry that owns every event subscription
// an application makes against a host environment.
//
// Effect modules register listeners through a Registry instead of
// subscribing with the host directly. The registry records each
// subscription under a unique Key, and can remove, pause and resume it,
// remove listeners in bulk by target or event name, and report what is
// wired up. When the host signals that it is about to be discarded the
// registry tears everything down exactly once.
//
// Hosts:
//   - dom: in-memory document tree with capture/bubble dispatch
//   - host/nats: UI events carried over NATS subjects
//   - host/redis: UI events carried over Redis Pub/Sub channels
//
// Basic example:
//
//	doc := dom.New()
//	r, err := listener.New(doc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	key := r.Register(ctx, doc.Window(), "scroll", func(ctx context.Context, ev listener.Event) {
//	    fmt.Println("scrolled")
//	}, listener.Options{Passive: true})
//
//	r.Pause(ctx, key)
//	r.Resume(ctx, key)
//	r.Remove(ctx, key)
//
// Fail-soft contract:
// No registry operation returns an error or panics because of a bookkeeping
// fault. Register returns the empty Key when it cannot subscribe; failures
// are logged and passed to the WithErrorHandler callback. Use Stats and
// ListActive to see what is actually wired.
//
// Registry Options:
//   - WithName: registry name for logs, metrics and spans. Default "listener".
//   - WithLogger: set the slog logger.
//   - WithErrorHandler: receive swallowed failures.
//   - WithMetrics: enable/disable OpenTelemetry metrics. Default is true.
//   - WithTracing: enable/disable OpenTelemetry spans. Default is true.
//   - WithRecovery: enable/disable handler panic recovery. Default is true.
//   - WithCancelPending: stop pending debounced deliveries on remove.
//
// Helpers:
//   - Delegate: one container listener dispatching to matching descendants
//   - Once: deliver the first firing only
//   - Debounced: deliver the last firing of a burst after a quiet period
//   - Throttled: deliver at most once per window
//
// Process-wide registry:
//
//	r, err := listener.Init(ctx, doc)
//	...
//	listener.Default().Register(ctx, doc.Body(), "click", handler)
//
// The default slot is released when that registry is destroyed.
package listener
