package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"gamingbot/internal/events"
	"gamingbot/internal/logging"
	"gamingbot/internal/models"
)

const eventTimeout = 2 * time.Minute

// EventHandler receives translated gateway events. Implemented by events.Handler.
type EventHandler interface {
	HandleVoiceUpdate(ctx context.Context, u events.VoiceUpdate)
	HandleRoleUpdate(ctx context.Context, u events.RoleUpdate)
	HandleGuildJoin(ctx context.Context, g models.Guild)
	HandleReady(ctx context.Context, guilds []models.Guild)
}

// Bot represents the Discord bot
type Bot struct {
	session  *discordgo.Session
	handler  EventHandler
	commands *Commands
	log      logging.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Discord bot
func New(token string, log logging.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		session: session,
		log:     log,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Session exposes the underlying session for the REST adapters
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Start registers the handlers and opens the gateway connection
func (b *Bot) Start(handler EventHandler, commands *Commands) error {
	b.handler = handler
	b.commands = commands

	b.session.AddHandler(b.ready)
	b.session.AddHandler(b.guildCreate)
	b.session.AddHandler(b.voiceStateUpdate)
	b.session.AddHandler(b.guildMemberUpdate)
	b.session.AddHandler(b.messageCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.log.Info("✅ Bot is running...")
	return nil
}

// Stop cancels in-flight handlers and closes the connection
func (b *Bot) Stop() error {
	b.cancel()
	return b.session.Close()
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, eventTimeout)
}

func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	ctx, cancel := b.eventContext()
	defer cancel()

	guilds := make([]models.Guild, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		guilds = append(guilds, models.Guild{ID: g.ID, Name: g.Name})
	}
	if r.User != nil {
		b.log.Info("🤖 logged in", logging.String("user", r.User.Username), logging.Int("guilds", len(guilds)))
	}
	b.handler.HandleReady(ctx, guilds)
}

func (b *Bot) guildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	ctx, cancel := b.eventContext()
	defer cancel()

	b.handler.HandleGuildJoin(ctx, models.Guild{ID: g.ID, Name: g.Name})
}

// voiceStateUpdate runs after the state cache applied the update, so the
// channel's voice states already include the member.
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || isBot(vs.Member) {
		return
	}
	if s.State.User != nil && vs.UserID == s.State.User.ID {
		return
	}

	u := events.VoiceUpdate{
		GuildID:        vs.GuildID,
		MemberID:       vs.UserID,
		MemberName:     memberName(s.State, vs.GuildID, vs.UserID, vs.Member),
		AfterChannelID: vs.ChannelID,
		At:             b.now().UTC(),
	}
	if vs.BeforeUpdate != nil {
		u.BeforeChannelID = vs.BeforeUpdate.ChannelID
	}
	if u.AfterChannelID != "" {
		if ch, err := s.State.Channel(u.AfterChannelID); err == nil {
			u.AfterChannelName = ch.Name
		}
		u.Occupants = occupantsOf(s.State, vs.GuildID, u.AfterChannelID)
	}

	ctx, cancel := b.eventContext()
	defer cancel()
	b.handler.HandleVoiceUpdate(ctx, u)
}

func (b *Bot) guildMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}

	u := events.RoleUpdate{
		GuildID:    m.GuildID,
		MemberID:   m.User.ID,
		AfterRoles: roleNames(s.State, m.GuildID, m.Roles),
	}
	if m.BeforeUpdate != nil {
		u.BeforeRoles = roleNames(s.State, m.GuildID, m.BeforeUpdate.Roles)
	}

	ctx, cancel := b.eventContext()
	defer cancel()
	b.handler.HandleRoleUpdate(ctx, u)
}

// messageCreate handles message creation events
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	msg := Message{
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.DisplayName(),
		Content:    m.Content,
	}
	if m.Member != nil && m.Member.Nick != "" {
		msg.AuthorName = m.Member.Nick
	}
	for _, u := range m.Mentions {
		msg.MentionIDs = append(msg.MentionIDs, u.ID)
	}
	if g, err := s.State.Guild(m.GuildID); err == nil {
		msg.GuildName = g.Name
	}
	if perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID); err == nil {
		msg.Permissions = perms
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	reply, ok := b.commands.Handle(ctx, msg, b.now().UTC())
	if !ok {
		return
	}

	send := &discordgo.MessageSend{Content: reply.Content}
	if reply.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{reply.Embed}
	}
	if _, err := s.ChannelMessageSendComplex(m.ChannelID, send, discordgo.WithContext(ctx)); err != nil {
		b.log.Error("❌ failed to send reply",
			logging.String("channel", m.ChannelID),
			logging.Err(err))
	}
}

// occupantsOf lists the non-bot members connected to a voice channel
func occupantsOf(st *discordgo.State, guildID, channelID string) []models.Occupant {
	g, err := st.Guild(guildID)
	if err != nil {
		return nil
	}

	st.RLock()
	var states []discordgo.VoiceState
	for _, vs := range g.VoiceStates {
		if vs != nil && vs.ChannelID == channelID {
			states = append(states, *vs)
		}
	}
	st.RUnlock()

	occupants := make([]models.Occupant, 0, len(states))
	for _, vs := range states {
		member := vs.Member
		if member == nil {
			member, _ = st.Member(guildID, vs.UserID)
		}
		if isBot(member) {
			continue
		}
		occupants = append(occupants, models.Occupant{
			ID:   vs.UserID,
			Name: memberName(st, guildID, vs.UserID, member),
		})
	}
	return occupants
}

func memberName(st *discordgo.State, guildID, userID string, m *discordgo.Member) string {
	if m == nil {
		m, _ = st.Member(guildID, userID)
	}
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.DisplayName()
	}
	return ""
}

// roleNames maps role IDs to names; unknown IDs are dropped
func roleNames(st *discordgo.State, guildID string, ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, err := st.Role(guildID, id); err == nil {
			names = append(names, r.Name)
		}
	}
	return names
}

func isBot(m *discordgo.Member) bool {
	return m != nil && m.User != nil && m.User.Bot
}
