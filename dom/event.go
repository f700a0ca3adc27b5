package dom

import (
	"errors"

	"github.com/rbaliyan/listener"
)

// Phase is the dispatch phase an event is in.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseCapturing
	PhaseAtTarget
	PhaseBubbling
)

func (p Phase) String() string {
	switch p {
	case PhaseCapturing:
		return "capturing"
	case PhaseAtTarget:
		return "at-target"
	case PhaseBubbling:
		return "bubbling"
	}
	return "none"
}

// Event is the listener.Event delivered by Document.Dispatch. Handlers
// reach it through AsEvent to stop propagation or prevent the default
// action.
type Event struct {
	typ     string
	target  *Node
	current *Node
	phase   Phase
	payload any

	passive          bool
	stopped          bool
	stoppedImmediate bool
	defaultPrevented bool
}

// Type returns the event type
func (e *Event) Type() string { return e.typ }

// Target returns the node the event was dispatched to
func (e *Event) Target() listener.Target { return e.target }

// CurrentTarget returns the node whose listeners are running
func (e *Event) CurrentTarget() listener.Target { return e.current }

// Payload returns the data passed to Dispatch
func (e *Event) Payload() any { return e.payload }

// Phase returns the current dispatch phase
func (e *Event) Phase() Phase { return e.phase }

// StopPropagation prevents the event from reaching further nodes. The
// remaining listeners of the current node still run.
func (e *Event) StopPropagation() { e.stopped = true }

// StopImmediatePropagation also skips the remaining listeners of the
// current node.
func (e *Event) StopImmediatePropagation() {
	e.stopped = true
	e.stoppedImmediate = true
}

// PreventDefault marks the default action as cancelled. It is ignored when
// called from a passive listener.
func (e *Event) PreventDefault() {
	if !e.passive {
		e.defaultPrevented = true
	}
}

// DefaultPrevented reports whether PreventDefault took effect.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// AsEvent returns the *Event behind ev, looking through wrappers such as
// delegated events.
func AsEvent(ev listener.Event) (*Event, bool) {
	for ev != nil {
		if e, ok := ev.(*Event); ok {
			return e, true
		}
		u, ok := ev.(interface{ Unwrap() listener.Event })
		if !ok {
			return nil, false
		}
		ev = u.Unwrap()
	}
	return nil, false
}

// IsListenerPanic checks if an error reports a recovered listener panic
func IsListenerPanic(err error) bool {
	return errors.Is(err, ErrListenerPanic)
}
