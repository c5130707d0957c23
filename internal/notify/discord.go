package notify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// Discord posts announcements to one channel through a bot session.
type Discord struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscord(token, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID}, nil
}

func (d *Discord) Announce(ctx context.Context, text string) error {
	_, err := d.session.ChannelMessageSendComplex(d.channelID, &discordgo.MessageSend{
		Content:         truncate(text, discordMaxChars),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) Close() error { return d.session.Close() }

// Discord rejects messages over 2000 characters.
const discordMaxChars = 2000

// truncate shortens text to at most limit runes, never splitting one.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}
