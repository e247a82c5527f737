package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram runs the long-polling front: it normalizes updates into Inbound
// events and dispatches each in its own goroutine. Per-participant ordering
// is preserved by the dispatcher's chat locks, not by the poll loop.
type Telegram struct {
	api *tgbotapi.BotAPI
	bot *Bot
	log *slog.Logger
}

func NewTelegram(api *tgbotapi.BotAPI, bot *Bot, log *slog.Logger) *Telegram {
	if log == nil {
		log = slog.Default()
	}
	return &Telegram{api: api, bot: bot, log: log}
}

// Run polls until the context is cancelled.
func (t *Telegram) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	updates := t.api.GetUpdatesChan(cfg)
	t.log.Info("telegram polling started", "bot", t.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := t.normalize(update)
			if !ok {
				continue
			}
			go t.bot.Dispatch(ctx, ev)
		}
	}
}

func (t *Telegram) normalize(update tgbotapi.Update) (Inbound, bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		return Inbound{
			ChatID:   msg.Chat.ID,
			Nickname: msg.From.UserName,
			Text:     msg.Text,
			HasText:  msg.Text != "",
		}, true
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		// Message is nil for presses on messages too old for the API to
		// return; there is no chat to answer into.
		if query.Message == nil {
			t.log.Warn("callback without message", "from", query.From.UserName)
			return Inbound{}, false
		}
		// Ack the button press so the client stops its spinner.
		if _, err := t.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			t.log.Warn("answer callback", "err", err)
		}
		return Inbound{
			ChatID:   query.Message.Chat.ID,
			Nickname: query.From.UserName,
			Choice:   query.Data,
		}, true
	default:
		return Inbound{}, false
	}
}
