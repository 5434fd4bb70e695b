package bot

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestPostAnnouncementAndDM(t *testing.T) {
	fake := &fakeSender{}
	b := &TelegramBot{bot: fake, chatID: -1001}
	ctx := context.Background()

	require.NoError(t, b.PostAnnouncement(ctx, "Freeze has begun for week 11."))
	require.NoError(t, b.DMUser(ctx, 42, "Your claim lost."))

	require.Len(t, fake.sent, 2)
	assert.Equal(t, int64(-1001), fake.sent[0].ChatID)
	assert.Equal(t, "Freeze has begun for week 11.", fake.sent[0].Text)
	assert.Equal(t, int64(42), fake.sent[1].ChatID)
}

func TestSendErrors(t *testing.T) {
	ctx := context.Background()

	assert.Error(t, (&TelegramBot{bot: &fakeSender{}}).PostAnnouncement(ctx, "hi"))
	assert.Error(t, (&TelegramBot{bot: &fakeSender{}, chatID: 1}).DMUser(ctx, 0, "hi"))

	boom := errors.New("forbidden: bot was blocked by the user")
	err := (&TelegramBot{bot: &fakeSender{err: boom}, chatID: 1}).DMUser(ctx, 42, "hi")
	assert.ErrorIs(t, err, boom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	fake := &fakeSender{}
	assert.ErrorIs(t, (&TelegramBot{bot: fake, chatID: 1}).PostAnnouncement(cancelled, "hi"), context.Canceled)
	assert.Empty(t, fake.sent)
}
