package models

import (
	"math"
	"time"
)

// Guild represents a community server the bot has seen
type Guild struct {
	ID   string
	Name string
}

// Member represents a platform user, stable across guilds
type Member struct {
	ID   string
	Name string
}

// VoiceSession represents one occupancy interval of a member in a voice channel
type VoiceSession struct {
	MemberID  string
	GuildID   string
	ChannelID string
	ArrivedAt time.Time
	LeftAt    time.Time
}

// Open reports whether the session has not been closed yet
func (s VoiceSession) Open() bool {
	return s.LeftAt.IsZero()
}

// Duration returns LeftAt - ArrivedAt, clamped at zero. Open sessions have no duration.
func (s VoiceSession) Duration() time.Duration {
	if s.Open() {
		return 0
	}
	d := s.LeftAt.Sub(s.ArrivedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Occupant is a member currently connected to a voice channel
type Occupant struct {
	ID   string
	Name string
}

// MemberStats represents the data shown by the stats command
type MemberStats struct {
	MemberID        string
	Name            string
	GameTimeSeconds float64
	Sessions        int64
}

// LeaderboardEntry represents one row of a guild leaderboard
type LeaderboardEntry struct {
	MemberID        string
	Name            string
	GameTimeSeconds float64
}

// EpochSeconds converts t to fractional unix seconds, the stored timestamp format
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromEpochSeconds converts stored fractional unix seconds back to a time
func FromEpochSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}
