// Package announce posts archive notices to the Telegram channel and keeps
// them current.
package announce

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	"go.uber.org/zap"
)

// botAPI is the slice of telego.Bot the announcer uses.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
}

// Config controls the announcer.
type Config struct {
	Token string
	// Channel is the target chat, e.g. "@mychannel" or a numeric id string.
	Channel string
}

// Announcer posts HTML-formatted messages to a single channel.
type Announcer struct {
	bot    botAPI
	chat   telego.ChatID
	logger *zap.Logger
}

// New connects the bot and binds it to the configured channel.
func New(cfg Config, logger *zap.Logger) (*Announcer, error) {
	bot, err := telego.NewBot(cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("announce: connect bot: %w", err)
	}
	return &Announcer{bot: bot, chat: telego.ChatID{Username: cfg.Channel}, logger: logger}, nil
}

// Post sends a message; a nonzero replyTo threads it under the parent
// announcement.
func (a *Announcer) Post(ctx context.Context, text string, replyTo int) (int, error) {
	params := &telego.SendMessageParams{
		ChatID:    a.chat,
		Text:      text,
		ParseMode: telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{
			IsDisabled: true,
		},
	}
	if replyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{
			MessageID:                replyTo,
			AllowSendingWithoutReply: true,
		}
	}

	msg, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("announce: post: %w", err)
	}
	a.logger.Debug("announcement posted",
		zap.Int("message_id", msg.MessageID),
		zap.Int("reply_to", replyTo),
	)
	return msg.MessageID, nil
}

// Edit rewrites an existing announcement in place.
func (a *Announcer) Edit(ctx context.Context, messageID int, text string) error {
	_, err := a.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    a.chat,
		MessageID: messageID,
		Text:      text,
		ParseMode: telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	if err != nil {
		return fmt.Errorf("announce: edit %d: %w", messageID, err)
	}
	return nil
}

// Delete removes an announcement from the channel.
func (a *Announcer) Delete(ctx context.Context, messageID int) error {
	if err := a.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    a.chat,
		MessageID: messageID,
	}); err != nil {
		return fmt.Errorf("announce: delete %d: %w", messageID, err)
	}
	return nil
}
