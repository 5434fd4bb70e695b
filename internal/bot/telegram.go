// Package bot delivers league announcements and GM direct messages over
// Telegram.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/omarshaarawi/rosterbot/internal/repository"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramBot struct {
	bot    sender
	chatID int64
}

var _ repository.NotificationSink = (*TelegramBot)(nil)

func NewTelegramBot(token string, chatID int64) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	slog.Info("Authorized on account", "username", bot.Self.UserName)

	return &TelegramBot{
		bot:    bot,
		chatID: chatID,
	}, nil
}

// PostAnnouncement sends text to the league chat.
func (t *TelegramBot) PostAnnouncement(ctx context.Context, text string) error {
	if t.chatID == 0 {
		slog.Error("Chat ID not set")
		return fmt.Errorf("chat ID not set")
	}
	return t.send(ctx, t.chatID, text)
}

// DMUser sends text to a user's private chat with the bot. The user must
// have started a conversation with the bot first.
func (t *TelegramBot) DMUser(ctx context.Context, userID int64, text string) error {
	if userID == 0 {
		return fmt.Errorf("user ID not set")
	}
	return t.send(ctx, userID, text)
}

func (t *TelegramBot) send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	_, err := t.bot.Send(msg)
	if err != nil {
		slog.Error("Error sending message", "chat", chatID, "error", err)
		return fmt.Errorf("error sending message to %d: %w", chatID, err)
	}
	return nil
}
