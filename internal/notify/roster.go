package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gamingbot/internal/logging"
	"gamingbot/internal/models"
	"gamingbot/pkg/keylock"
)

// DefaultSubscriberRole is the role members join to receive notifications
const DefaultSubscriberRole = "DM"

// SubscriberStore keeps the per-guild notify flag
type SubscriberStore interface {
	SubscriberIDs(ctx context.Context, guildID string) ([]string, error)
	IsSubscriber(ctx context.Context, guildID, memberID string) (bool, error)
	SetSubscriber(ctx context.Context, guildID, memberID string, on bool) error
}

// RoleSource reads and writes role membership on the chat platform.
// RoleMembers and HasRole return models.ErrRoleNotFound when the guild has no such role.
type RoleSource interface {
	RoleMembers(ctx context.Context, guildID, role string) ([]string, error)
	HasRole(ctx context.Context, guildID, memberID, role string) (bool, error)
	SetMemberRole(ctx context.Context, guildID, memberID, role string, on bool) error
}

// Roster maintains the set of subscribers per guild.
//
// With a RoleSource the platform role is authoritative and the store flag
// follows it. Without one the store flag alone defines the roster.
//
// Writers take the guild lock before the member lock, so a refresh never
// publishes a snapshot older than a concurrent member change.
type Roster struct {
	store   SubscriberStore
	roles   RoleSource
	role    string
	guilds  *keylock.Map
	members *keylock.Map
	log     logging.Logger

	mu    sync.RWMutex
	cache map[string]map[string]struct{}
}

// NewRoster creates a roster. roles may be nil.
func NewRoster(store SubscriberStore, roles RoleSource, role string, log logging.Logger) *Roster {
	if role == "" {
		role = DefaultSubscriberRole
	}
	return &Roster{
		store:   store,
		roles:   roles,
		role:    role,
		guilds:  keylock.New(),
		members: keylock.New(),
		log:     log,
		cache:   make(map[string]map[string]struct{}),
	}
}

// RoleName returns the subscriber role name
func (r *Roster) RoleName() string { return r.role }

// Refresh rebuilds the guild's roster from its source of truth and caches it.
// A missing subscriber role yields an empty roster and leaves the store untouched.
func (r *Roster) Refresh(ctx context.Context, guildID string) (map[string]struct{}, error) {
	unlock := r.guilds.Lock(guildID)
	defer unlock()

	stored, err := r.store.SubscriberIDs(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: get subscribers: %v", models.ErrStoreUnavailable, err)
	}

	if r.roles == nil {
		set := toSet(stored)
		r.put(guildID, set)
		return copySet(set), nil
	}

	ids, err := r.roles.RoleMembers(ctx, guildID, r.role)
	if errors.Is(err, models.ErrRoleNotFound) {
		r.log.Warn("⚠️ subscriber role not found",
			logging.String("guild", guildID),
			logging.String("role", r.role))
		set := map[string]struct{}{}
		r.put(guildID, set)
		return copySet(set), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch role members: %w", err)
	}

	set := toSet(ids)
	storedSet := toSet(stored)
	var added, removed int
	for id := range set {
		if _, ok := storedSet[id]; ok {
			continue
		}
		if err := r.setFlag(ctx, guildID, id, true); err != nil {
			return nil, err
		}
		added++
	}
	for id := range storedSet {
		if _, ok := set[id]; ok {
			continue
		}
		if err := r.setFlag(ctx, guildID, id, false); err != nil {
			return nil, err
		}
		removed++
	}

	r.put(guildID, set)
	r.log.Debug("roster refreshed",
		logging.String("guild", guildID),
		logging.Int("subscribers", len(set)),
		logging.Int("added", added),
		logging.Int("removed", removed))
	return copySet(set), nil
}

// RefreshAll refreshes every guild and returns the joined errors
func (r *Roster) RefreshAll(ctx context.Context, guildIDs []string) error {
	var errs []error
	for _, id := range guildIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.Refresh(ctx, id); err != nil {
			r.log.Error("❌ roster refresh failed", logging.String("guild", id), logging.Err(err))
			errs = append(errs, fmt.Errorf("guild %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Roster returns the cached roster, refreshing it on a miss
func (r *Roster) Roster(ctx context.Context, guildID string) (map[string]struct{}, error) {
	r.mu.RLock()
	set, ok := r.cache[guildID]
	if ok {
		out := copySet(set)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()
	return r.Refresh(ctx, guildID)
}

// Toggle flips the member's subscription and returns the new state.
// The current state comes from the role when there is one, and the role is
// changed first so a platform failure leaves the store untouched.
func (r *Roster) Toggle(ctx context.Context, guildID, memberID string) (bool, error) {
	unlock := r.lockMember(guildID, memberID)
	defer unlock()

	on, err := r.subscribed(ctx, guildID, memberID)
	if err != nil {
		return false, err
	}
	next := !on

	if r.roles != nil {
		err := r.roles.SetMemberRole(ctx, guildID, memberID, r.role, next)
		switch {
		case errors.Is(err, models.ErrRoleNotFound):
			r.log.Warn("⚠️ subscriber role not found, only the stored flag changes",
				logging.String("guild", guildID),
				logging.String("role", r.role))
		case err != nil:
			return on, fmt.Errorf("failed to update subscriber role: %w", err)
		}
	}

	if err := r.setFlag(ctx, guildID, memberID, next); err != nil {
		return on, err
	}
	r.apply(guildID, memberID, next)

	r.log.Info("🔔 subscription toggled",
		logging.String("guild", guildID),
		logging.String("member", memberID),
		logging.Bool("subscribed", next))
	return next, nil
}

// ApplyRoleChange mirrors a single member's role gain or loss into the store.
// A loss for a member that was never subscribed writes nothing.
func (r *Roster) ApplyRoleChange(ctx context.Context, guildID, memberID string, hasRole bool) error {
	unlock := r.lockMember(guildID, memberID)
	defer unlock()

	if !hasRole {
		on, err := r.store.IsSubscriber(ctx, guildID, memberID)
		if err != nil {
			return fmt.Errorf("%w: get subscriber flag: %v", models.ErrStoreUnavailable, err)
		}
		if !on {
			r.apply(guildID, memberID, false)
			return nil
		}
	}

	if err := r.setFlag(ctx, guildID, memberID, hasRole); err != nil {
		return err
	}
	r.apply(guildID, memberID, hasRole)
	return nil
}

func (r *Roster) lockMember(guildID, memberID string) (unlock func()) {
	unlockGuild := r.guilds.Lock(guildID)
	unlockMember := r.members.Lock(guildID + ":" + memberID)
	return func() {
		unlockMember()
		unlockGuild()
	}
}

// subscribed reads the member's current state, from the role when it exists
func (r *Roster) subscribed(ctx context.Context, guildID, memberID string) (bool, error) {
	if r.roles != nil {
		has, err := r.roles.HasRole(ctx, guildID, memberID, r.role)
		if err == nil {
			return has, nil
		}
		if !errors.Is(err, models.ErrRoleNotFound) {
			return false, fmt.Errorf("failed to read subscriber role: %w", err)
		}
	}
	on, err := r.store.IsSubscriber(ctx, guildID, memberID)
	if err != nil {
		return false, fmt.Errorf("%w: get subscriber flag: %v", models.ErrStoreUnavailable, err)
	}
	return on, nil
}

func (r *Roster) setFlag(ctx context.Context, guildID, memberID string, on bool) error {
	if err := r.store.SetSubscriber(ctx, guildID, memberID, on); err != nil {
		return fmt.Errorf("%w: set subscriber flag: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Roster) put(guildID string, set map[string]struct{}) {
	r.mu.Lock()
	r.cache[guildID] = set
	r.mu.Unlock()
}

// apply updates an already cached roster; uncached guilds load on next use
func (r *Roster) apply(guildID, memberID string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.cache[guildID]
	if !ok {
		return
	}
	if on {
		set[memberID] = struct{}{}
	} else {
		delete(set, memberID)
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

// sortedIDs returns the set's members in a stable order
func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
