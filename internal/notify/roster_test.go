package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamingbot/internal/logging"
	"gamingbot/internal/models"
)

func TestRoster_StoreOnly(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	_ = store.SetSubscriber(ctx, "g1", "A", true)
	_ = store.SetSubscriber(ctx, "g1", "B", false)

	r := NewRoster(store, nil, "", logging.Nop())
	set, err := r.Refresh(ctx, "g1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("expected one subscriber, got %v", set)
	}
	if _, ok := set["A"]; !ok {
		t.Errorf("expected A subscribed, got %v", set)
	}
	if r.RoleName() != DefaultSubscriberRole {
		t.Errorf("unexpected role name %q", r.RoleName())
	}
}

func TestRoster_RoleIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	_ = store.SetSubscriber(ctx, "g1", "stale", true)
	roles := newMemRoles()
	roles.members["g1"] = map[string]bool{"A": true, "B": true}

	r := NewRoster(store, roles, "DM", logging.Nop())
	set, err := r.Refresh(ctx, "g1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected role members only, got %v", set)
	}

	ids, _ := store.SubscriberIDs(ctx, "g1")
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "B" {
		t.Errorf("store flags not reconciled, got %v", ids)
	}
}

func TestRoster_RoleMissingYieldsEmptySet(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	_ = store.SetSubscriber(ctx, "g1", "A", true)

	r := NewRoster(store, newMemRoles(), "DM", logging.Nop())
	set, err := r.Refresh(ctx, "g1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty roster, got %v", set)
	}
	if on, _ := store.IsSubscriber(ctx, "g1", "A"); !on {
		t.Error("missing role must not clear stored flags")
	}
}

func TestRoster_PlatformErrorPropagates(t *testing.T) {
	roles := newMemRoles()
	roles.err = errors.New("rate limited")

	r := NewRoster(newMemSubscribers(), roles, "DM", logging.Nop())
	if _, err := r.Refresh(context.Background(), "g1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRoster_StoreFailure(t *testing.T) {
	store := newMemSubscribers()
	store.err = errBackend

	r := NewRoster(store, nil, "DM", logging.Nop())
	if _, err := r.Refresh(context.Background(), "g1"); !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := r.Toggle(context.Background(), "g1", "A"); !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRoster_CachesUntilRefresh(t *testing.T) {
	ctx := context.Background()
	roles := newMemRoles()
	roles.members["g1"] = map[string]bool{"A": true}

	r := NewRoster(newMemSubscribers(), roles, "DM", logging.Nop())
	for i := 0; i < 3; i++ {
		if _, err := r.Roster(ctx, "g1"); err != nil {
			t.Fatalf("Roster: %v", err)
		}
	}
	if roles.calls != 1 {
		t.Errorf("expected a single platform lookup, got %d", roles.calls)
	}

	// callers get a copy
	set, _ := r.Roster(ctx, "g1")
	delete(set, "A")
	again, _ := r.Roster(ctx, "g1")
	if _, ok := again["A"]; !ok {
		t.Error("mutating a returned roster must not affect the cache")
	}
}

func TestRoster_Toggle(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	roles := newMemRoles()
	roles.members["g1"] = map[string]bool{}

	r := NewRoster(store, roles, "DM", logging.Nop())
	if _, err := r.Roster(ctx, "g1"); err != nil {
		t.Fatalf("Roster: %v", err)
	}

	on, err := r.Toggle(ctx, "g1", "A")
	if err != nil || !on {
		t.Fatalf("expected subscribed, got %v err=%v", on, err)
	}
	if !roles.members["g1"]["A"] {
		t.Error("role not granted")
	}
	set, _ := r.Roster(ctx, "g1")
	if _, ok := set["A"]; !ok {
		t.Error("cache not updated on toggle")
	}

	on, err = r.Toggle(ctx, "g1", "A")
	if err != nil || on {
		t.Fatalf("expected unsubscribed, got %v err=%v", on, err)
	}
	if roles.members["g1"]["A"] {
		t.Error("role not revoked")
	}
	if flag, _ := store.IsSubscriber(ctx, "g1", "A"); flag {
		t.Error("store flag not cleared")
	}
}

func TestRoster_TogglePlatformFailureLeavesStore(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	roles := newMemRoles()
	roles.members["g1"] = map[string]bool{}
	roles.err = errors.New("missing permissions")

	r := NewRoster(store, roles, "DM", logging.Nop())
	if _, err := r.Toggle(ctx, "g1", "A"); err == nil {
		t.Fatal("expected error")
	}
	if flag, _ := store.IsSubscriber(ctx, "g1", "A"); flag {
		t.Error("store must not change when the role update fails")
	}
}

func TestRoster_ApplyRoleChange(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	r := NewRoster(store, nil, "DM", logging.Nop())

	if _, err := r.Roster(ctx, "g1"); err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if err := r.ApplyRoleChange(ctx, "g1", "A", true); err != nil {
		t.Fatalf("ApplyRoleChange: %v", err)
	}
	set, _ := r.Roster(ctx, "g1")
	if _, ok := set["A"]; !ok {
		t.Error("gained role must subscribe")
	}

	if err := r.ApplyRoleChange(ctx, "g1", "A", false); err != nil {
		t.Fatalf("ApplyRoleChange: %v", err)
	}
	set, _ = r.Roster(ctx, "g1")
	if len(set) != 0 {
		t.Errorf("lost role must unsubscribe, got %v", set)
	}
}

func TestRoster_RefreshAllJoinsErrors(t *testing.T) {
	roles := newMemRoles()
	roles.members["ok"] = map[string]bool{"A": true}
	store := newMemSubscribers()

	r := NewRoster(store, roles, "DM", logging.Nop())
	if err := r.RefreshAll(context.Background(), []string{"ok", "missing"}); err != nil {
		t.Fatalf("missing role is not an error, got %v", err)
	}

	store.err = errBackend
	err := r.RefreshAll(context.Background(), []string{"ok", "missing"})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("expected joined store errors, got %v", err)
	}
}

func TestRoster_RoleGainDuringRefreshIsKept(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	roles := newMemRoles()
	roles.members["g1"] = map[string]bool{"A": true}

	r := NewRoster(store, roles, "DM", logging.Nop())

	done := make(chan error, 1)
	roles.afterFetch = func() {
		roles.afterFetch = nil
		// called with roles.mu held
		roles.members["g1"]["X"] = true
		go func() { done <- r.ApplyRoleChange(ctx, "g1", "X", true) }()
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := r.Refresh(ctx, "g1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("ApplyRoleChange: %v", err)
	}

	set, err := r.Roster(ctx, "g1")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if _, ok := set["X"]; !ok {
		t.Errorf("member gaining the role mid-refresh was dropped: %v", set)
	}
	if on, _ := store.IsSubscriber(ctx, "g1", "X"); !on {
		t.Error("store flag not set")
	}
}

func TestRoster_RoleLossForNonSubscriberWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	r := NewRoster(store, nil, "DM", logging.Nop())

	if err := r.ApplyRoleChange(ctx, "g1", "A", false); err != nil {
		t.Fatalf("ApplyRoleChange: %v", err)
	}
	if _, ok := store.flags["g1"]["A"]; ok {
		t.Error("expected no stored row for a member that never subscribed")
	}
}

func TestRoster_ToggleReadsStateFromRole(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	roles := newMemRoles()
	// granted while the bot was offline, store not reconciled yet
	roles.members["g1"] = map[string]bool{"A": true}

	r := NewRoster(store, roles, "DM", logging.Nop())
	on, err := r.Toggle(ctx, "g1", "A")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if on {
		t.Error("expected toggle to unsubscribe a role holder")
	}
	if roles.members["g1"]["A"] {
		t.Error("role not revoked")
	}
}

func TestRoster_ToggleWithoutRoleUsesStoredFlag(t *testing.T) {
	ctx := context.Background()
	store := newMemSubscribers()
	_ = store.SetSubscriber(ctx, "g1", "A", true)

	r := NewRoster(store, newMemRoles(), "DM", logging.Nop())
	on, err := r.Toggle(ctx, "g1", "A")
	if err != nil || on {
		t.Fatalf("expected unsubscribed from stored flag, got %v err=%v", on, err)
	}
}
