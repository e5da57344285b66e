package notifier

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts lifecycle updates to the parish staff channel.
type DiscordNotifier struct {
	session   channelSender
	channelID string
	logger    *zap.Logger
}

func NewDiscordNotifier(session *discordgo.Session, channelID string, logger *zap.Logger) *DiscordNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &DiscordNotifier{channelID: channelID, logger: logger}
	if session != nil {
		n.session = session
	}
	return n
}

// NewDiscordSession opens a bot session for the staff channel.
func NewDiscordSession(botToken string) (*discordgo.Session, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord bot token is empty")
	}
	return discordgo.New("Bot " + botToken)
}

func (n *DiscordNotifier) RegistrationReceived(ctx context.Context, msg Message) error {
	return n.send(fmt.Sprintf("📝 **New registration**\n**Participant:** %s\n**Event:** %s\n**Registration:** #%d",
		msg.Participant.Name, msg.Event.Name, msg.Registration.ID))
}

func (n *DiscordNotifier) RegistrationSelected(ctx context.Context, msg Message) error {
	return n.send(fmt.Sprintf("✅ **Selected**\n**Participant:** %s\n**Event:** %s\n**Registration:** #%d",
		msg.Participant.Name, msg.Event.Name, msg.Registration.ID))
}

func (n *DiscordNotifier) PaymentConfirmed(ctx context.Context, msg Message) error {
	return n.send(fmt.Sprintf("💰 **Payment confirmed**\n**Participant:** %s\n**Event:** %s\n**Fee:** %s\n**Registration:** #%d",
		msg.Participant.Name, msg.Event.Name, msg.Event.Fee.StringFixed(2), msg.Registration.ID))
}

func (n *DiscordNotifier) send(message string) error {
	if n.session == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}

	if _, err := n.session.ChannelMessageSend(n.channelID, message); err != nil {
		n.logger.Warn("failed to send discord message", zap.Error(err), zap.String("channel_id", n.channelID))
		return err
	}
	return nil
}
