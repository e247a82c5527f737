package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button is one inline choice offered under a message. Data comes back as
// the Choice of a later inbound event.
type Button struct {
	Label string
	Data  string
}

// Transport is the outbound messaging capability. Sends are fire-and-forget
// best-effort; the dispatcher treats a send failure as an aborted turn.
type Transport interface {
	SendText(chatID int64, text string) error
	SendButtons(chatID int64, text string, buttons []Button) error
}

// TelegramTransport adapts the Telegram Bot API to Transport. Each Button
// renders as its own inline keyboard row.
type TelegramTransport struct {
	api *tgbotapi.BotAPI
}

func NewTelegramTransport(api *tgbotapi.BotAPI) *TelegramTransport {
	return &TelegramTransport{api: api}
}

func (t *TelegramTransport) SendText(chatID int64, text string) error {
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (t *TelegramTransport) SendButtons(chatID int64, text string, buttons []Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data),
		))
	}
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err := t.api.Send(msg)
	return err
}
