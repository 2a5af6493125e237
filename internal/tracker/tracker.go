// Package tracker turns voice join/leave events into persisted sessions and
// cumulative per-member game time.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamingbot/internal/logging"
	"gamingbot/internal/models"
	"gamingbot/pkg/keylock"
)

// Store is implemented by internal/database.Repository
type Store interface {
	UpsertGuild(ctx context.Context, g models.Guild) error
	UpsertMember(ctx context.Context, m models.Member) error
	UpsertMembership(ctx context.Context, guildID, memberID string) error
	OpenSession(ctx context.Context, s models.VoiceSession) error
	OpenSessionFor(ctx context.Context, memberID string) (models.VoiceSession, error)
	// CloseSession records the session and adds its duration to the
	// member's game time atomically.
	CloseSession(ctx context.Context, s models.VoiceSession) error
}

// Arrival describes a member connecting to voice
type Arrival struct {
	GuildID    string
	MemberID   string
	MemberName string
	ChannelID  string
}

// Outcome tells what a leave did
type Outcome int

const (
	OutcomeRecorded Outcome = iota
	OutcomeNoOpenSession
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeNoOpenSession:
		return "no_open_session"
	default:
		return "unknown"
	}
}

// LeaveResult is returned by OnLeave
type LeaveResult struct {
	Outcome Outcome
	Session models.VoiceSession
}

// Tracker records voice sessions. Calls for the same member are serialized.
type Tracker struct {
	store Store
	locks *keylock.Map
	log   logging.Logger
}

// New creates a tracker backed by store
func New(store Store, log logging.Logger) *Tracker {
	return &Tracker{store: store, locks: keylock.New(), log: log}
}

// OnJoin makes sure the member and its guild membership exist, then opens a
// session arriving at now. A join while a session is already open overwrites
// the arrival time.
func (t *Tracker) OnJoin(ctx context.Context, a Arrival, now time.Time) error {
	unlock := t.locks.Lock(a.MemberID)
	defer unlock()

	if err := t.store.UpsertGuild(ctx, models.Guild{ID: a.GuildID}); err != nil {
		return unavailable("upsert guild", err)
	}
	if err := t.store.UpsertMember(ctx, models.Member{ID: a.MemberID, Name: a.MemberName}); err != nil {
		return unavailable("upsert member", err)
	}
	if err := t.store.UpsertMembership(ctx, a.GuildID, a.MemberID); err != nil {
		return unavailable("upsert membership", err)
	}

	session := models.VoiceSession{
		MemberID:  a.MemberID,
		GuildID:   a.GuildID,
		ChannelID: a.ChannelID,
		ArrivedAt: now,
	}
	if err := t.store.OpenSession(ctx, session); err != nil {
		return unavailable("open session", err)
	}

	t.log.Info("➡️ voice join",
		logging.String("member", a.MemberID),
		logging.String("guild", a.GuildID),
		logging.String("channel", a.ChannelID))
	return nil
}

// OnLeave closes the member's open session and adds its duration to the
// member's game time. A leave without an open session is a no-op.
func (t *Tracker) OnLeave(ctx context.Context, memberID string, now time.Time) (LeaveResult, error) {
	unlock := t.locks.Lock(memberID)
	defer unlock()

	session, err := t.store.OpenSessionFor(ctx, memberID)
	if errors.Is(err, models.ErrNoOpenSession) {
		t.log.Debug("leave without open session", logging.String("member", memberID))
		return LeaveResult{Outcome: OutcomeNoOpenSession}, nil
	}
	if err != nil {
		return LeaveResult{}, unavailable("get open session", err)
	}

	// Duration clamps a leave stamped before the stored arrival to zero
	session.LeftAt = now
	duration := session.Duration()

	if err := t.store.CloseSession(ctx, session); err != nil {
		return LeaveResult{}, unavailable("close session", err)
	}

	t.log.Info("⬅️ voice leave",
		logging.String("member", memberID),
		logging.String("guild", session.GuildID),
		logging.Float64("seconds", duration.Seconds()))
	return LeaveResult{Outcome: OutcomeRecorded, Session: session}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
}
