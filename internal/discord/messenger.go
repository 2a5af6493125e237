package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"gamingbot/internal/models"
)

// Messenger sends direct messages. Implements notify.Messenger.
type Messenger struct {
	session *discordgo.Session
}

func NewMessenger(s *discordgo.Session) *Messenger {
	return &Messenger{session: s}
}

func (m *Messenger) SendDirect(ctx context.Context, memberID, text string) error {
	ch, err := m.session.UserChannelCreate(memberID, discordgo.WithContext(ctx))
	if err != nil {
		return directError(memberID, err)
	}
	if _, err := m.session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return directError(memberID, err)
	}
	return nil
}

func directError(memberID string, err error) error {
	if restCode(err) == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return fmt.Errorf("%w: %s", models.ErrRecipientUnreachable, memberID)
	}
	return fmt.Errorf("failed to message %s: %w", memberID, err)
}

// restCode returns the Discord JSON error code carried by err, or 0
func restCode(err error) int {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Message != nil {
		return re.Message.Code
	}
	return 0
}
