// Package notify pushes operational alerts and contact requests to the
// school's admin chat over Telegram. The notifier is optional: a nil
// *Telegram is valid and does nothing.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "vkcoursebot/core/config"
	"vkcoursebot/core/logger"
)

// Telegram delivers admin notifications to a single chat.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// NewTelegram builds the notifier, or returns (nil, nil) when no token
// is configured.
func NewTelegram(cfg coreconfig.NotifyConfig) (*Telegram, error) {
	if cfg.TelegramToken == "" {
		return nil, nil
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.TelegramToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	logger.NTF.Info("admin notifier enabled",
		slog.String("event", "notify.init"),
		slog.Int64("chat", cfg.ChatID),
	)
	return &Telegram{bot: bot, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

// ContactRequest tells the admin a VK user asked to be contacted.
func (t *Telegram) ContactRequest(ctx context.Context, userID int64, name, text string) error {
	if t == nil {
		return nil
	}
	who := name
	if who == "" {
		who = "без имени"
	}
	msg := fmt.Sprintf("Запрос связи от vk.com/id%d (%s)", userID, who)
	if text != "" {
		msg += "\n" + logger.SanitizeLimit(text, 500)
	}
	return t.send(ctx, msg)
}

// PollFault reports a long-poll fault the loop could not hide.
func (t *Telegram) PollFault(ctx context.Context, cause error) error {
	if t == nil {
		return nil
	}
	return t.send(ctx, fmt.Sprintf("Бот: сбой опроса VK: %v", cause))
}

// Startup announces that the bot came up.
func (t *Telegram) Startup(ctx context.Context, version string) error {
	if t == nil {
		return nil
	}
	return t.send(ctx, fmt.Sprintf("Бот запущен, версия %s", version))
}

func (t *Telegram) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(t.chat, text); err != nil {
		logger.NTF.Warn("notification send failed",
			slog.String("event", "notify.send"),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}
