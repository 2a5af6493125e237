package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamingbot/internal/logging"
	"gamingbot/internal/models"
	"gamingbot/internal/notify"
	"gamingbot/internal/tracker"
)

type fakeTracker struct {
	joins   []tracker.Arrival
	leaves  []string
	joinErr error
}

func (f *fakeTracker) OnJoin(_ context.Context, a tracker.Arrival, _ time.Time) error {
	f.joins = append(f.joins, a)
	return f.joinErr
}

func (f *fakeTracker) OnLeave(_ context.Context, memberID string, _ time.Time) (tracker.LeaveResult, error) {
	f.leaves = append(f.leaves, memberID)
	return tracker.LeaveResult{Outcome: tracker.OutcomeRecorded}, nil
}

type fakeNotifier struct {
	activations []notify.Activation
	at          []time.Time
}

func (f *fakeNotifier) ChannelBecameActive(_ context.Context, a notify.Activation, now time.Time) (notify.DispatchResult, error) {
	f.activations = append(f.activations, a)
	f.at = append(f.at, now)
	return notify.DispatchResult{Outcome: notify.OutcomeSent}, nil
}

type roleChange struct {
	guild, member string
	has           bool
}

type fakeRoster struct {
	refreshed []string
	changes   []roleChange
	err       error
}

func (f *fakeRoster) Refresh(_ context.Context, guildID string) (map[string]struct{}, error) {
	f.refreshed = append(f.refreshed, guildID)
	return map[string]struct{}{}, f.err
}

func (f *fakeRoster) ApplyRoleChange(_ context.Context, guildID, memberID string, has bool) error {
	f.changes = append(f.changes, roleChange{guildID, memberID, has})
	return f.err
}

type fakeGuilds struct {
	upserted []models.Guild
	err      error
}

func (f *fakeGuilds) UpsertGuild(_ context.Context, g models.Guild) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, g)
	return nil
}

type fixture struct {
	tracker  *fakeTracker
	notifier *fakeNotifier
	roster   *fakeRoster
	guilds   *fakeGuilds
	h        *Handler
}

func newFixture() *fixture {
	f := &fixture{
		tracker:  &fakeTracker{},
		notifier: &fakeNotifier{},
		roster:   &fakeRoster{},
		guilds:   &fakeGuilds{},
	}
	f.h = NewHandler(f.tracker, f.notifier, f.roster, f.guilds, "DM", logging.Nop())
	return f
}

var t0 = time.Unix(1_700_000_000, 0).UTC()

func occupants(ids ...string) []models.Occupant {
	out := make([]models.Occupant, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Occupant{ID: id, Name: "name-" + id})
	}
	return out
}

func joinUpdate(member string, at time.Time, occ ...string) VoiceUpdate {
	return VoiceUpdate{
		GuildID:          "g1",
		MemberID:         member,
		MemberName:       "name-" + member,
		AfterChannelID:   "c1",
		AfterChannelName: "Lobby",
		Occupants:        occupants(occ...),
		At:               at,
	}
}

func TestHandler_SecondArrivalScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.h.HandleVoiceUpdate(ctx, joinUpdate("A", t0, "A"))
	if len(f.notifier.activations) != 0 {
		t.Fatal("first arrival must not notify")
	}

	f.h.HandleVoiceUpdate(ctx, joinUpdate("B", t0.Add(10*time.Second), "A", "B"))
	if len(f.notifier.activations) != 1 {
		t.Fatalf("second arrival must notify once, got %d", len(f.notifier.activations))
	}
	act := f.notifier.activations[0]
	if act.ChannelID != "c1" || act.ChannelName != "Lobby" || len(act.Occupants) != 2 {
		t.Errorf("unexpected activation %+v", act)
	}
	if !f.notifier.at[0].Equal(t0.Add(10 * time.Second)) {
		t.Errorf("dispatch must use the event time, got %s", f.notifier.at[0])
	}

	f.h.HandleVoiceUpdate(ctx, joinUpdate("C", t0.Add(20*time.Second), "A", "B", "C"))
	if len(f.notifier.activations) != 1 {
		t.Error("third arrival must not notify")
	}

	f.h.HandleVoiceUpdate(ctx, VoiceUpdate{GuildID: "g1", MemberID: "A", BeforeChannelID: "c1", At: t0.Add(100 * time.Second)})
	if len(f.tracker.joins) != 3 || len(f.tracker.leaves) != 1 || f.tracker.leaves[0] != "A" {
		t.Errorf("unexpected tracker calls joins=%d leaves=%v", len(f.tracker.joins), f.tracker.leaves)
	}
}

func TestHandler_MoveKeepsSessionAndCanActivate(t *testing.T) {
	f := newFixture()
	u := joinUpdate("B", t0, "A", "B")
	u.BeforeChannelID = "c0"

	f.h.HandleVoiceUpdate(context.Background(), u)

	if len(f.tracker.joins) != 0 || len(f.tracker.leaves) != 0 {
		t.Error("a move must not touch the open session")
	}
	if len(f.notifier.activations) != 1 {
		t.Error("moving in as second occupant must notify")
	}
}

func TestHandler_SameChannelIgnored(t *testing.T) {
	f := newFixture()
	u := joinUpdate("A", t0, "A", "B")
	u.BeforeChannelID = "c1"

	f.h.HandleVoiceUpdate(context.Background(), u)

	if len(f.tracker.joins)+len(f.tracker.leaves)+len(f.notifier.activations) != 0 {
		t.Error("a state change inside one channel must be ignored")
	}
}

func TestHandler_JoinFailureStillDispatches(t *testing.T) {
	f := newFixture()
	f.tracker.joinErr = models.ErrStoreUnavailable

	f.h.HandleVoiceUpdate(context.Background(), joinUpdate("B", t0, "A", "B"))

	if len(f.notifier.activations) != 1 {
		t.Error("tracking and notification are independent")
	}
}

func TestHandler_RoleUpdate(t *testing.T) {
	tests := []struct {
		name        string
		before      []string
		after       []string
		wantChanges int
		wantHas     bool
	}{
		{"gained", []string{"Gamer"}, []string{"Gamer", "DM"}, 1, true},
		{"lost", []string{"DM"}, []string{}, 1, false},
		{"unchanged with role", []string{"DM"}, []string{"DM", "Other"}, 0, false},
		{"unchanged without role", []string{}, []string{"Other"}, 0, false},
		{"unknown before", nil, []string{"DM"}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.h.HandleRoleUpdate(context.Background(), RoleUpdate{GuildID: "g1", MemberID: "A", BeforeRoles: tt.before, AfterRoles: tt.after})
			if len(f.roster.changes) != tt.wantChanges {
				t.Fatalf("expected %d changes, got %d", tt.wantChanges, len(f.roster.changes))
			}
			if tt.wantChanges == 1 && f.roster.changes[0].has != tt.wantHas {
				t.Errorf("expected has=%v", tt.wantHas)
			}
		})
	}
}

func TestHandler_GuildJoinAndReady(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.h.HandleReady(ctx, []models.Guild{{ID: "g1", Name: "One"}, {ID: "g2", Name: "Two"}})
	if len(f.guilds.upserted) != 2 || len(f.roster.refreshed) != 2 {
		t.Fatalf("expected every guild registered, got %v / %v", f.guilds.upserted, f.roster.refreshed)
	}

	f.guilds.err = errors.New("db down")
	f.h.HandleGuildJoin(ctx, models.Guild{ID: "g3"})
	if len(f.roster.refreshed) != 2 {
		t.Error("roster must not load for an unregistered guild")
	}
}
