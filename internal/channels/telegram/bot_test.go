package telegram

import "testing"

func TestChatKey(t *testing.T) {
	tests := []struct {
		chatID int64
		want   string
	}{
		{123456789, "123456789"},
		{-100987654321, "-100987654321"}, // supergroup IDs are negative
		{0, "0"},
	}

	for _, tt := range tests {
		if got := chatKey(tt.chatID); got != tt.want {
			t.Errorf("chatKey(%d) = %q, want %q", tt.chatID, got, tt.want)
		}
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(&Config{}, nil); err == nil {
		t.Error("expected error for missing bot token")
	}
}
