package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ChannelSink posts log lines into a named text channel of one guild.
// Implements logging.Sink.
type ChannelSink struct {
	session     *discordgo.Session
	guildID     string
	channelName string

	mu        sync.Mutex
	channelID string
}

func NewChannelSink(s *discordgo.Session, guildID, channelName string) *ChannelSink {
	return &ChannelSink{session: s, guildID: guildID, channelName: channelName}
}

func (c *ChannelSink) Send(ctx context.Context, text string) error {
	id, err := c.resolve(ctx)
	if err != nil {
		return err
	}
	if _, err := c.session.ChannelMessageSend(id, text, discordgo.WithContext(ctx)); err != nil {
		// the channel may have been deleted, look it up again next time
		c.mu.Lock()
		c.channelID = ""
		c.mu.Unlock()
		return fmt.Errorf("failed to send log line: %w", err)
	}
	return nil
}

func (c *ChannelSink) resolve(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.channelID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	channels, err := c.session.GuildChannels(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to list channels: %w", err)
	}
	ch := textChannelByName(channels, c.channelName)
	if ch == nil {
		return "", fmt.Errorf("log channel #%s not found in guild %s", c.channelName, c.guildID)
	}

	c.mu.Lock()
	c.channelID = ch.ID
	c.mu.Unlock()
	return ch.ID, nil
}

func textChannelByName(channels []*discordgo.Channel, name string) *discordgo.Channel {
	for _, ch := range channels {
		if ch != nil && ch.Type == discordgo.ChannelTypeGuildText && ch.Name == name {
			return ch
		}
	}
	return nil
}
