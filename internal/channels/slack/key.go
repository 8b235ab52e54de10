package slack

import "strings"

// conversationKey scopes a history to a channel plus the thread within it.
func conversationKey(channel, threadTS string) string {
	return channel + ":" + threadTS
}

// stripMention removes the bot's own <@UXXXX> mention tokens from text and
// trims the result. Mentions of other users are left in place.
func stripMention(text, botUserID string) string {
	if botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	}
	return strings.TrimSpace(text)
}
