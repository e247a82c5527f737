package bot

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestNormalize_Message(t *testing.T) {
	front := NewTelegram(nil, nil, nil)
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 42},
			From: &tgbotapi.User{UserName: "acme_client"},
			Text: "hello",
		},
	}

	ev, ok := front.normalize(update)
	if !ok {
		t.Fatalf("expected message update to normalize")
	}
	if ev.ChatID != 42 || ev.Nickname != "acme_client" || ev.Text != "hello" || !ev.HasText {
		t.Fatalf("expected normalized event, got %+v", ev)
	}
}

func TestNormalize_CallbackWithoutMessageDropped(t *testing.T) {
	front := NewTelegram(nil, nil, nil)
	update := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb1",
			From: &tgbotapi.User{UserName: "acme_client"},
			Data: "take_order:o1",
		},
	}

	if _, ok := front.normalize(update); ok {
		t.Fatalf("expected callback without a message to be dropped")
	}
}

func TestNormalize_UnsupportedUpdateDropped(t *testing.T) {
	front := NewTelegram(nil, nil, nil)

	if _, ok := front.normalize(tgbotapi.Update{}); ok {
		t.Fatalf("expected empty update to be dropped")
	}
}
