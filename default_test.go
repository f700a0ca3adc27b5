package listener

import (
	"context"
	"errors"
	"testing"
)

func TestInitDefault(t *testing.T) {
	ctx := context.Background()
	if Default() != nil {
		t.Fatal("expected no default registry before Init")
	}

	host := NewRecordingHost()
	r, err := Init(ctx, host, WithMetrics(false), WithTracing(false))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { r.DestroyAll(ctx) })

	if Default() != r {
		t.Error("Default should return the initialized registry")
	}

	t.Run("second init fails", func(t *testing.T) {
		other := NewRecordingHost()
		r2, err := Init(ctx, other)
		if !errors.Is(err, ErrAlreadyInitialized) {
			t.Errorf("expected ErrAlreadyInitialized, got %v", err)
		}
		if r2 != nil {
			t.Error("expected nil registry")
		}
		if Default() != r {
			t.Error("default registry was replaced")
		}
	})

	t.Run("nil host", func(t *testing.T) {
		if _, err := Init(ctx, nil); !errors.Is(err, ErrHostRequired) {
			t.Errorf("expected ErrHostRequired, got %v", err)
		}
	})

	t.Run("discard releases the slot", func(t *testing.T) {
		Default().Register(ctx, NewTestTarget("body", ""), "click", noop)
		host.Discard()
		if Default() != nil {
			t.Error("expected slot to be released after discard")
		}

		next, err := Init(ctx, NewRecordingHost(), WithMetrics(false), WithTracing(false))
		if err != nil {
			t.Fatalf("re-Init failed: %v", err)
		}
		defer next.DestroyAll(ctx)
		if Default() != next {
			t.Error("expected new default registry")
		}
	})
}

func TestDestroyKeepsForeignDefault(t *testing.T) {
	ctx := context.Background()
	r, err := Init(ctx, NewRecordingHost(), WithMetrics(false), WithTracing(false))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer r.DestroyAll(ctx)

	local := TestRegistry(NewRecordingHost())
	local.DestroyAll(ctx)
	if Default() != r {
		t.Error("destroying another registry cleared the default slot")
	}
}
