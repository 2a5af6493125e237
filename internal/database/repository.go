package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gamingbot/internal/models"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.conn.ExecContext(ctx, query, args...)
	return err
}

// UpsertGuild creates the guild row or refreshes its name
func (r *Repository) UpsertGuild(ctx context.Context, g models.Guild) error {
	err := r.exec(ctx, `
		INSERT INTO guilds (guild_id, name)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE guilds.name END,
			updated_at = CURRENT_TIMESTAMP`,
		g.ID, g.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert guild: %w", err)
	}
	return nil
}

// ListGuilds returns every registered guild
func (r *Repository) ListGuilds(ctx context.Context) ([]models.Guild, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT guild_id, name FROM guilds ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}
	defer rows.Close()

	var guilds []models.Guild
	for rows.Next() {
		var g models.Guild
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan guild: %w", err)
		}
		guilds = append(guilds, g)
	}
	return guilds, rows.Err()
}

// UpsertMember creates the member row or refreshes its display name
func (r *Repository) UpsertMember(ctx context.Context, m models.Member) error {
	err := r.exec(ctx, `
		INSERT INTO members (member_id, name)
		VALUES ($1, $2)
		ON CONFLICT (member_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE members.name END,
			updated_at = CURRENT_TIMESTAMP`,
		m.ID, m.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// UpsertMembership links a member to a guild. Existing links are left untouched.
func (r *Repository) UpsertMembership(ctx context.Context, guildID, memberID string) error {
	err := r.exec(ctx, `
		INSERT INTO guild_members (guild_id, member_id)
		VALUES ($1, $2)
		ON CONFLICT (guild_id, member_id) DO NOTHING`,
		guildID, memberID)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// OpenSession records an arrival. A second arrival without a leave replaces the first.
func (r *Repository) OpenSession(ctx context.Context, s models.VoiceSession) error {
	err := r.exec(ctx, `
		INSERT INTO open_sessions (member_id, guild_id, channel_id, arrived_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id) DO UPDATE SET
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			arrived_at = excluded.arrived_at`,
		s.MemberID, s.GuildID, s.ChannelID, models.EpochSeconds(s.ArrivedAt))
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	return nil
}

// OpenSessionFor returns the open session of a member or models.ErrNoOpenSession
func (r *Repository) OpenSessionFor(ctx context.Context, memberID string) (models.VoiceSession, error) {
	var (
		s       models.VoiceSession
		arrived float64
	)
	err := r.db.conn.QueryRowContext(ctx, `
		SELECT member_id, guild_id, channel_id, arrived_at
		FROM open_sessions
		WHERE member_id = $1`,
		memberID).Scan(&s.MemberID, &s.GuildID, &s.ChannelID, &arrived)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VoiceSession{}, models.ErrNoOpenSession
	}
	if err != nil {
		return models.VoiceSession{}, fmt.Errorf("failed to get open session: %w", err)
	}
	s.ArrivedAt = models.FromEpochSeconds(arrived)
	return s, nil
}

// CloseSession moves a session from the open table into the history table and
// adds its duration to the member's game time, in one transaction
func (r *Repository) CloseSession(ctx context.Context, s models.VoiceSession) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin close session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM open_sessions WHERE member_id = $1`, s.MemberID); err != nil {
		return fmt.Errorf("failed to delete open session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO voice_sessions (member_id, arrived_at, guild_id, channel_id, left_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (member_id, arrived_at) DO UPDATE SET
			left_at = excluded.left_at,
			duration_seconds = excluded.duration_seconds`,
		s.MemberID, models.EpochSeconds(s.ArrivedAt), s.GuildID, s.ChannelID,
		models.EpochSeconds(s.LeftAt), s.Duration().Seconds())
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE members
		SET game_time_seconds = game_time_seconds + $1, updated_at = CURRENT_TIMESTAMP
		WHERE member_id = $2`,
		s.Duration().Seconds(), s.MemberID); err != nil {
		return fmt.Errorf("failed to add game time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit close session: %w", err)
	}
	return nil
}

// GameTime returns the member's cumulative game time, zero for unknown members
func (r *Repository) GameTime(ctx context.Context, memberID string) (float64, error) {
	var total float64
	err := r.db.conn.QueryRowContext(ctx, `SELECT game_time_seconds FROM members WHERE member_id = $1`,
		memberID).Scan(&total)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get game time: %w", err)
	}
	return total, nil
}

// LastNotified returns the guild's last notification time; ok is false if none was stored
func (r *Repository) LastNotified(ctx context.Context, guildID string) (time.Time, bool, error) {
	var last sql.NullFloat64
	err := r.db.conn.QueryRowContext(ctx, `SELECT last_notified_at FROM guilds WHERE guild_id = $1`,
		guildID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get cooldown: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return models.FromEpochSeconds(last.Float64), true, nil
}

// SetLastNotified overwrites the guild's last notification time
func (r *Repository) SetLastNotified(ctx context.Context, guildID string, at time.Time) error {
	err := r.exec(ctx, `
		INSERT INTO guilds (guild_id, last_notified_at)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET
			last_notified_at = excluded.last_notified_at,
			updated_at = CURRENT_TIMESTAMP`,
		guildID, models.EpochSeconds(at))
	if err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

// SubscriberIDs returns the members of a guild flagged for DM notifications
func (r *Repository) SubscriberIDs(ctx context.Context, guildID string) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT member_id FROM guild_members
		WHERE guild_id = $1 AND notify = TRUE
		ORDER BY member_id`,
		guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscribers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsSubscriber reports the member's DM flag in a guild
func (r *Repository) IsSubscriber(ctx context.Context, guildID, memberID string) (bool, error) {
	var notify bool
	err := r.db.conn.QueryRowContext(ctx, `
		SELECT notify FROM guild_members
		WHERE guild_id = $1 AND member_id = $2`,
		guildID, memberID).Scan(&notify)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get subscriber flag: %w", err)
	}
	return notify, nil
}

// SetSubscriber sets the member's DM flag, creating the member and membership if needed
func (r *Repository) SetSubscriber(ctx context.Context, guildID, memberID string, on bool) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin set subscriber: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO members (member_id) VALUES ($1)
		ON CONFLICT (member_id) DO NOTHING`, memberID); err != nil {
		return fmt.Errorf("failed to ensure member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO guild_members (guild_id, member_id, notify)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, member_id) DO UPDATE SET notify = excluded.notify`,
		guildID, memberID, on); err != nil {
		return fmt.Errorf("failed to set subscriber flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit set subscriber: %w", err)
	}
	return nil
}

// MemberStats returns game time and the number of closed sessions in a guild
func (r *Repository) MemberStats(ctx context.Context, guildID, memberID string) (models.MemberStats, error) {
	stats := models.MemberStats{MemberID: memberID}
	err := r.db.conn.QueryRowContext(ctx, `SELECT name, game_time_seconds FROM members WHERE member_id = $1`,
		memberID).Scan(&stats.Name, &stats.GameTimeSeconds)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, fmt.Errorf("failed to get member stats: %w", err)
	}

	err = r.db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM voice_sessions
		WHERE guild_id = $1 AND member_id = $2`,
		guildID, memberID).Scan(&stats.Sessions)
	if err != nil {
		return stats, fmt.Errorf("failed to count sessions: %w", err)
	}
	return stats, nil
}

// Leaderboard returns the guild's members ordered by game time
func (r *Repository) Leaderboard(ctx context.Context, guildID string, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT m.member_id, m.name, m.game_time_seconds
		FROM members m
		JOIN guild_members gm ON gm.member_id = m.member_id
		WHERE gm.guild_id = $1 AND m.game_time_seconds > 0
		ORDER BY m.game_time_seconds DESC, m.member_id
		LIMIT $2`,
		guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.MemberID, &e.Name, &e.GameTimeSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
