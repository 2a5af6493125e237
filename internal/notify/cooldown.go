// Package notify decides when a guild's subscribers are told about voice
// activity and delivers the direct messages.
package notify

import (
	"context"
	"fmt"
	"time"

	"gamingbot/internal/models"
)

// DefaultCooldown is the minimum time between two notifications in one guild
const DefaultCooldown = 4 * time.Hour

// CooldownStore persists the last notification time per guild.
// Implemented by internal/database.Repository and internal/redis.CooldownStore.
type CooldownStore interface {
	LastNotified(ctx context.Context, guildID string) (time.Time, bool, error)
	SetLastNotified(ctx context.Context, guildID string, at time.Time) error
}

// Gate answers whether a guild may be notified again.
//
// IsOnCooldown and MarkNotified are separate round trips. Two activations
// racing in the same guild can both pass the check and both dispatch; that
// window is accepted.
type Gate struct {
	store  CooldownStore
	window time.Duration
}

// NewGate creates a gate. A non-positive window falls back to DefaultCooldown.
func NewGate(store CooldownStore, window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Gate{store: store, window: window}
}

// Window returns the configured cooldown
func (g *Gate) Window() time.Duration { return g.window }

// IsOnCooldown reports true iff the guild was notified less than the window ago
func (g *Gate) IsOnCooldown(ctx context.Context, guildID string, now time.Time) (bool, error) {
	remaining, err := g.Remaining(ctx, guildID, now)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// MarkNotified records now as the guild's last notification time
func (g *Gate) MarkNotified(ctx context.Context, guildID string, now time.Time) error {
	if err := g.store.SetLastNotified(ctx, guildID, now); err != nil {
		return fmt.Errorf("%w: set last notified: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Remaining returns how long the guild stays on cooldown, zero when it is not
func (g *Gate) Remaining(ctx context.Context, guildID string, now time.Time) (time.Duration, error) {
	last, ok, err := g.store.LastNotified(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("%w: get last notified: %v", models.ErrStoreUnavailable, err)
	}
	if !ok {
		return 0, nil
	}
	elapsed := now.Sub(last)
	if elapsed >= g.window {
		return 0, nil
	}
	return g.window - elapsed, nil
}
