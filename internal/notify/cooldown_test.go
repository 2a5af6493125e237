package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamingbot/internal/models"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func TestGate_NeverNotifiedIsNotOnCooldown(t *testing.T) {
	g := NewGate(newMemCooldowns(), 4*time.Hour)

	on, err := g.IsOnCooldown(context.Background(), "g1", t0)
	if err != nil {
		t.Fatalf("IsOnCooldown: %v", err)
	}
	if on {
		t.Error("fresh guild must not be on cooldown")
	}
}

func TestGate_WindowBoundaries(t *testing.T) {
	ctx := context.Background()
	window := 4 * time.Hour
	g := NewGate(newMemCooldowns(), window)

	if err := g.MarkNotified(ctx, "g1", t0); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"one second later", t0.Add(time.Second), true},
		{"just before window", t0.Add(window - time.Second), true},
		{"exactly at window", t0.Add(window), false},
		{"after window", t0.Add(window + time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			on, err := g.IsOnCooldown(ctx, "g1", tt.at)
			if err != nil {
				t.Fatalf("IsOnCooldown: %v", err)
			}
			if on != tt.want {
				t.Errorf("expected %v, got %v", tt.want, on)
			}
		})
	}

	on, _ := g.IsOnCooldown(ctx, "g2", t0.Add(time.Second))
	if on {
		t.Error("cooldown must be scoped to its guild")
	}
}

func TestGate_MarkOverwrites(t *testing.T) {
	ctx := context.Background()
	g := NewGate(newMemCooldowns(), time.Hour)

	_ = g.MarkNotified(ctx, "g1", t0)
	_ = g.MarkNotified(ctx, "g1", t0.Add(2*time.Hour))

	remaining, err := g.Remaining(ctx, "g1", t0.Add(150*time.Minute))
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 30*time.Minute {
		t.Errorf("expected 30m remaining, got %s", remaining)
	}
}

func TestGate_DefaultWindow(t *testing.T) {
	if w := NewGate(newMemCooldowns(), 0).Window(); w != DefaultCooldown {
		t.Errorf("expected default window, got %s", w)
	}
}

func TestGate_StoreFailure(t *testing.T) {
	store := newMemCooldowns()
	store.err = errBackend
	g := NewGate(store, time.Hour)

	if _, err := g.IsOnCooldown(context.Background(), "g1", t0); !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := g.MarkNotified(context.Background(), "g1", t0); !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
