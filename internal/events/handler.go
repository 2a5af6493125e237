// Package events routes platform-neutral voice, role and guild events to the
// tracker, roster and dispatcher. Failures end here as log lines.
package events

import (
	"context"
	"time"

	"gamingbot/internal/logging"
	"gamingbot/internal/models"
	"gamingbot/internal/notify"
	"gamingbot/internal/tracker"
)

type SessionTracker interface {
	OnJoin(ctx context.Context, a tracker.Arrival, now time.Time) error
	OnLeave(ctx context.Context, memberID string, now time.Time) (tracker.LeaveResult, error)
}

type Notifier interface {
	ChannelBecameActive(ctx context.Context, a notify.Activation, now time.Time) (notify.DispatchResult, error)
}

type RosterSync interface {
	Refresh(ctx context.Context, guildID string) (map[string]struct{}, error)
	ApplyRoleChange(ctx context.Context, guildID, memberID string, hasRole bool) error
}

type GuildStore interface {
	UpsertGuild(ctx context.Context, g models.Guild) error
}

// VoiceUpdate is a member's voice state change. Occupants lists who is in the
// after channel once the change is applied, the member included.
type VoiceUpdate struct {
	GuildID          string
	MemberID         string
	MemberName       string
	BeforeChannelID  string
	AfterChannelID   string
	AfterChannelName string
	Occupants        []models.Occupant
	At               time.Time
}

// RoleUpdate carries role names before and after a member update.
// A nil BeforeRoles means the previous state is unknown.
type RoleUpdate struct {
	GuildID     string
	MemberID    string
	BeforeRoles []string
	AfterRoles  []string
}

type Handler struct {
	tracker  SessionTracker
	notifier Notifier
	roster   RosterSync
	guilds   GuildStore
	role     string
	log      logging.Logger
}

func NewHandler(t SessionTracker, n Notifier, r RosterSync, guilds GuildStore, role string, log logging.Logger) *Handler {
	if role == "" {
		role = notify.DefaultSubscriberRole
	}
	return &Handler{tracker: t, notifier: n, roster: r, guilds: guilds, role: role, log: log}
}

// HandleVoiceUpdate records joins and leaves and fires a notification when the
// member's arrival makes the channel's second occupant.
func (h *Handler) HandleVoiceUpdate(ctx context.Context, u VoiceUpdate) {
	log := h.log.With(logging.String("guild", u.GuildID), logging.String("member", u.MemberID))

	switch {
	case u.BeforeChannelID == u.AfterChannelID:
		// mute, deafen, stream toggles
		return

	case u.BeforeChannelID == "":
		err := h.tracker.OnJoin(ctx, tracker.Arrival{
			GuildID:    u.GuildID,
			MemberID:   u.MemberID,
			MemberName: u.MemberName,
			ChannelID:  u.AfterChannelID,
		}, u.At)
		if err != nil {
			log.Error("❌ failed to record voice join", logging.Err(err))
		}

	case u.AfterChannelID == "":
		if _, err := h.tracker.OnLeave(ctx, u.MemberID, u.At); err != nil {
			log.Error("❌ failed to record voice leave", logging.Err(err))
		}
		return

	default:
		log.Debug("voice move",
			logging.String("from", u.BeforeChannelID),
			logging.String("to", u.AfterChannelID))
	}

	if len(u.Occupants) != 2 {
		return
	}

	res, err := h.notifier.ChannelBecameActive(ctx, notify.Activation{
		GuildID:     u.GuildID,
		ChannelID:   u.AfterChannelID,
		ChannelName: u.AfterChannelName,
		Occupants:   u.Occupants,
	}, u.At)
	if err != nil {
		log.Error("❌ notification dispatch failed", logging.Err(err))
		return
	}
	if res.Outcome == notify.OutcomeSent && len(res.Failures) > 0 {
		ids := make([]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			ids = append(ids, f.MemberID)
		}
		log.Warn("⚠️ some subscribers were not reached", logging.Strs("members", ids))
	}
}

// HandleRoleUpdate mirrors subscriber role gains and losses into the roster
func (h *Handler) HandleRoleUpdate(ctx context.Context, u RoleUpdate) {
	has := contains(u.AfterRoles, h.role)
	if u.BeforeRoles != nil && contains(u.BeforeRoles, h.role) == has {
		return
	}
	if err := h.roster.ApplyRoleChange(ctx, u.GuildID, u.MemberID, has); err != nil {
		h.log.Error("❌ failed to apply subscriber role change",
			logging.String("guild", u.GuildID),
			logging.String("member", u.MemberID),
			logging.Err(err))
	}
}

// HandleGuildJoin registers a guild and loads its roster
func (h *Handler) HandleGuildJoin(ctx context.Context, g models.Guild) {
	if err := h.guilds.UpsertGuild(ctx, g); err != nil {
		h.log.Error("❌ failed to register guild", logging.String("guild", g.ID), logging.Err(err))
		return
	}
	set, err := h.roster.Refresh(ctx, g.ID)
	if err != nil {
		h.log.Error("❌ failed to load roster", logging.String("guild", g.ID), logging.Err(err))
		return
	}
	h.log.Info("🏠 guild registered",
		logging.String("guild", g.ID),
		logging.String("name", g.Name),
		logging.Int("subscribers", len(set)))
}

// HandleReady registers every guild the bot is in
func (h *Handler) HandleReady(ctx context.Context, guilds []models.Guild) {
	for _, g := range guilds {
		if ctx.Err() != nil {
			return
		}
		h.HandleGuildJoin(ctx, g)
	}
	h.log.Info("✅ ready", logging.Int("guilds", len(guilds)))
}

func contains(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
