package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"gamingbot/internal/logging"
	"gamingbot/internal/models"
	"gamingbot/pkg/utils"
)

// Messenger delivers a direct message to a member
type Messenger interface {
	SendDirect(ctx context.Context, memberID, text string) error
}

// CooldownChecker is satisfied by *Gate
type CooldownChecker interface {
	IsOnCooldown(ctx context.Context, guildID string, now time.Time) (bool, error)
	MarkNotified(ctx context.Context, guildID string, now time.Time) error
}

// RosterSource is satisfied by *Roster
type RosterSource interface {
	Roster(ctx context.Context, guildID string) (map[string]struct{}, error)
}

// Activation describes a voice channel that just got its second occupant
type Activation struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	Occupants   []models.Occupant
}

// DispatchOutcome tells whether messages went out
type DispatchOutcome int

const (
	OutcomeSent DispatchOutcome = iota
	OutcomeSkipped
)

func (o DispatchOutcome) String() string {
	if o == OutcomeSent {
		return "sent"
	}
	return "skipped"
}

// Skip reasons
const (
	ReasonCooldown      = "cooldown"
	ReasonNoSubscribers = "no_subscribers"
)

// DeliveryFailure is one recipient that could not be messaged
type DeliveryFailure struct {
	MemberID string
	Err      error
}

// DispatchResult is returned by ChannelBecameActive
type DispatchResult struct {
	Outcome  DispatchOutcome
	Reason   string
	Sent     int
	Failures []DeliveryFailure
}

// Dispatcher notifies a guild's subscribers when a voice channel activates
type Dispatcher struct {
	gate      CooldownChecker
	roster    RosterSource
	messenger Messenger
	limiter   *rate.Limiter
	log       logging.Logger
}

// NewDispatcher creates a dispatcher sending at most perSec messages per second.
// perSec <= 0 disables throttling.
func NewDispatcher(gate CooldownChecker, roster RosterSource, messenger Messenger, perSec int, log logging.Logger) *Dispatcher {
	limit := rate.Inf
	burst := 1
	if perSec > 0 {
		limit = rate.Limit(perSec)
		burst = perSec
	}
	return &Dispatcher{
		gate:      gate,
		roster:    roster,
		messenger: messenger,
		limiter:   rate.NewLimiter(limit, burst),
		log:       log,
	}
}

// ChannelBecameActive notifies every subscriber not already in the channel,
// unless the guild is on cooldown. The cooldown is marked before recipients are
// resolved, so an empty roster still consumes the window.
func (d *Dispatcher) ChannelBecameActive(ctx context.Context, a Activation, now time.Time) (DispatchResult, error) {
	log := d.log.With(logging.String("guild", a.GuildID), logging.String("channel", a.ChannelID))

	onCooldown, err := d.gate.IsOnCooldown(ctx, a.GuildID, now)
	if err != nil {
		return DispatchResult{}, err
	}
	if onCooldown {
		log.Info("⏳ notification skipped, guild on cooldown")
		return DispatchResult{Outcome: OutcomeSkipped, Reason: ReasonCooldown}, nil
	}

	if err := d.gate.MarkNotified(ctx, a.GuildID, now); err != nil {
		return DispatchResult{}, err
	}

	roster, err := d.roster.Roster(ctx, a.GuildID)
	if err != nil {
		return DispatchResult{}, err
	}
	for _, o := range a.Occupants {
		delete(roster, o.ID)
	}
	if len(roster) == 0 {
		log.Info("notification skipped, no subscribers to notify")
		return DispatchResult{Outcome: OutcomeSkipped, Reason: ReasonNoSubscribers}, nil
	}

	text := Message(a.ChannelName, a.Occupants)
	result := DispatchResult{Outcome: OutcomeSent}
	recipients := sortedIDs(roster)
	for i, id := range recipients {
		if err := d.limiter.Wait(ctx); err != nil {
			for _, rest := range recipients[i:] {
				result.Failures = append(result.Failures, DeliveryFailure{MemberID: rest, Err: err})
			}
			break
		}
		if err := d.messenger.SendDirect(ctx, id, text); err != nil {
			log.Warn("⚠️ direct message failed", logging.String("member", id), logging.Err(err))
			result.Failures = append(result.Failures, DeliveryFailure{MemberID: id, Err: err})
			continue
		}
		result.Sent++
	}

	log.Info("📨 notification dispatched",
		logging.Int("sent", result.Sent),
		logging.Int("failed", len(result.Failures)))
	return result, nil
}

// Message renders the notification text for a channel and its occupants
func Message(channelName string, occupants []models.Occupant) string {
	names := make([]string, 0, len(occupants))
	for _, o := range occupants {
		name := o.Name
		if name == "" {
			name = utils.FormatUserMention(o.ID)
		}
		names = append(names, name)
	}
	return "Gaming time in \"" + channelName + "\" with " + utils.JoinNames(names) + "!"
}
