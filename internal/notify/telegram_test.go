package notify

import "testing"

func TestNewTelegramSenderName(t *testing.T) {
	t.Parallel()
	tg := NewTelegramSender("bot-token", "chat-1")
	if tg.Name() != "telegram" {
		t.Errorf("Name() = %q, want telegram", tg.Name())
	}
}

func TestNewTelegramSenderRetainsConfiguredFields(t *testing.T) {
	t.Parallel()
	tg := NewTelegramSender("bot-token", "chat-1")
	if tg.token != "bot-token" || tg.chatID != "chat-1" {
		t.Errorf("got token=%q chatID=%q, want bot-token/chat-1", tg.token, tg.chatID)
	}
	if tg.client == nil {
		t.Error("expected a non-nil default HTTP client")
	}
}
