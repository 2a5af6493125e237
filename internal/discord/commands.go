package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"gamingbot/internal/logging"
	"gamingbot/internal/models"
	"gamingbot/pkg/utils"
)

const (
	leaderboardSize = 10

	replyNoPermission = "❌ You don't have permission to use this command!"

	colorInfo    = 0x0099ff
	colorSuccess = 0x00ff00
	colorGold    = 0xffd700
)

// StatsStore reads guild statistics. Implemented by database.Repository.
type StatsStore interface {
	MemberStats(ctx context.Context, guildID, memberID string) (models.MemberStats, error)
	Leaderboard(ctx context.Context, guildID string, limit int) ([]models.LeaderboardEntry, error)
	UpsertGuild(ctx context.Context, g models.Guild) error
}

// Subscriptions is implemented by notify.Roster
type Subscriptions interface {
	Toggle(ctx context.Context, guildID, memberID string) (bool, error)
	Refresh(ctx context.Context, guildID string) (map[string]struct{}, error)
	RoleName() string
}

// Cooldowns is implemented by notify.Gate
type Cooldowns interface {
	Remaining(ctx context.Context, guildID string, now time.Time) (time.Duration, error)
	Window() time.Duration
}

// RoleEnsurer creates the subscriber role when missing. Implemented by RoleDirectory.
type RoleEnsurer interface {
	EnsureRole(ctx context.Context, guildID, name string) (bool, error)
}

// Message is a text command as received from a guild channel
type Message struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	Content     string
	MentionIDs  []string
	Permissions int64
}

// Reply is what the bot answers with
type Reply struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// Commands implements the prefix commands
type Commands struct {
	prefix string
	stats  StatsStore
	subs   Subscriptions
	cd     Cooldowns
	roles  RoleEnsurer
	log    logging.Logger
}

func NewCommands(prefix string, stats StatsStore, subs Subscriptions, cd Cooldowns, roles RoleEnsurer, log logging.Logger) *Commands {
	if prefix == "" {
		prefix = "!"
	}
	return &Commands{prefix: prefix, stats: stats, subs: subs, cd: cd, roles: roles, log: log}
}

// Handle runs the command in m. ok is false when m is not a known command.
func (c *Commands) Handle(ctx context.Context, m Message, now time.Time) (reply Reply, ok bool) {
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, c.prefix) {
		return Reply{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, c.prefix))
	if len(fields) == 0 {
		return Reply{}, false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch name {
	case "stats":
		reply, err = c.handleStats(ctx, m, args)
	case "leaderboard", "lb":
		reply, err = c.handleLeaderboard(ctx, m)
	case "dm":
		reply, err = c.handleDM(ctx, m)
	case "cooldown":
		if !hasPermission(m.Permissions, discordgo.PermissionManageGuild) {
			return Reply{Content: replyNoPermission}, true
		}
		reply, err = c.handleCooldown(ctx, m, now)
	case "setup":
		if !hasPermission(m.Permissions, discordgo.PermissionAdministrator) {
			return Reply{Content: replyNoPermission}, true
		}
		reply, err = c.handleSetup(ctx, m)
	case "help":
		reply = c.handleHelp()
	default:
		return Reply{}, false
	}

	if err != nil {
		c.log.Error("❌ command failed",
			logging.String("command", name),
			logging.String("guild", m.GuildID),
			logging.String("author", m.AuthorID),
			logging.Err(err))
		return Reply{Content: fmt.Sprintf("❌ An error occurred: %v", err)}, true
	}
	return reply, true
}

// handleStats shows the game time of the author or the mentioned member
func (c *Commands) handleStats(ctx context.Context, m Message, args []string) (Reply, error) {
	targetID, targetName := m.AuthorID, m.AuthorName
	if len(m.MentionIDs) > 0 {
		targetID, targetName = m.MentionIDs[0], ""
	} else if len(args) > 0 && utils.IsUserMention(args[0]) {
		targetID, targetName = utils.ExtractUserIDFromMention(args[0]), ""
	}

	stats, err := c.stats.MemberStats(ctx, m.GuildID, targetID)
	if err != nil {
		return Reply{}, err
	}
	if targetName == "" {
		targetName = stats.Name
	}
	if targetName == "" {
		targetName = utils.FormatUserMention(targetID)
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("📊 Voice Stats for %s", targetName),
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total Voice Time", Value: utils.FormatDuration(stats.GameTimeSeconds), Inline: true},
			{Name: "Sessions", Value: fmt.Sprintf("%d", stats.Sessions), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Requested by %s", m.AuthorName)},
	}
	return Reply{Embed: embed}, nil
}

func (c *Commands) handleLeaderboard(ctx context.Context, m Message) (Reply, error) {
	entries, err := c.stats.Leaderboard(ctx, m.GuildID, leaderboardSize)
	if err != nil {
		return Reply{}, err
	}

	var lines []string
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = utils.FormatUserMention(e.MemberID)
		}
		lines = append(lines, utils.FormatLeaderboardEntry(i+1, name, utils.FormatDuration(e.GameTimeSeconds)))
	}
	if len(lines) == 0 {
		lines = append(lines, "No voice time recorded yet.")
	}

	title := "🏆 Voice Leaderboard"
	if m.GuildName != "" {
		title += " - " + m.GuildName
	}
	return Reply{Embed: &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Color:       colorGold,
	}}, nil
}

func (c *Commands) handleDM(ctx context.Context, m Message) (Reply, error) {
	now, err := c.subs.Toggle(ctx, m.GuildID, m.AuthorID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf("Your status went from DM: %t to DM: %t", !now, now)}, nil
}

func (c *Commands) handleCooldown(ctx context.Context, m Message, now time.Time) (Reply, error) {
	remaining, err := c.cd.Remaining(ctx, m.GuildID, now)
	if err != nil {
		return Reply{}, err
	}
	if remaining <= 0 {
		return Reply{Content: "✅ Notifications are ready, no cooldown active."}, nil
	}
	return Reply{Content: fmt.Sprintf("⏰ Notification cooldown active: %s remaining (window %s).",
		utils.FormatRemaining(remaining), utils.FormatRemaining(c.cd.Window()))}, nil
}

func (c *Commands) handleSetup(ctx context.Context, m Message) (Reply, error) {
	if err := c.stats.UpsertGuild(ctx, models.Guild{ID: m.GuildID, Name: m.GuildName}); err != nil {
		return Reply{}, err
	}

	role := c.subs.RoleName()
	created, err := c.roles.EnsureRole(ctx, m.GuildID, role)
	if err != nil {
		return Reply{}, err
	}

	set, err := c.subs.Refresh(ctx, m.GuildID)
	if err != nil {
		return Reply{}, err
	}

	roleStatus := "already present"
	if created {
		roleStatus = "created"
	}
	return Reply{Embed: &discordgo.MessageEmbed{
		Title: "🛠️ Bot Setup",
		Color: colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Subscriber role", Value: fmt.Sprintf("`%s` %s", role, roleStatus), Inline: true},
			{Name: "Subscribers", Value: fmt.Sprintf("%d", len(set)), Inline: true},
		},
	}}, nil
}

func (c *Commands) handleHelp() Reply {
	p := c.prefix
	return Reply{Embed: &discordgo.MessageEmbed{
		Title:       "🤖 Gaming Notification Bot Commands",
		Description: "Track voice channel activity and get gaming notifications!",
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "📊 User Commands",
				Value: fmt.Sprintf("`%sstats [@user]` - View voice time stats\n"+
					"`%sleaderboard` - Server voice leaderboard\n"+
					"`%sdm` - Toggle DM notifications", p, p, p),
			},
			{
				Name: "🛠️ Admin Commands",
				Value: fmt.Sprintf("`%ssetup` - Setup bot for this server\n"+
					"`%scooldown` - Check notification cooldown", p, p),
			},
			{Name: "ℹ️ Info", Value: fmt.Sprintf("Prefix: `%s`", p)},
		},
	}}
}

// hasPermission treats administrator as holding every permission
func hasPermission(perms, want int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&want == want
}
