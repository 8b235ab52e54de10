// Package config loads the merged bridgebot configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lindenapp/bridgebot/internal/bot"
	"github.com/lindenapp/bridgebot/internal/channels/discord"
	"github.com/lindenapp/bridgebot/internal/channels/slack"
	"github.com/lindenapp/bridgebot/internal/channels/telegram"
	"github.com/lindenapp/bridgebot/internal/channels/whatsapp"
	"github.com/lindenapp/bridgebot/internal/conversation"
)

// Config represents the merged bridgebot configuration
type Config struct {
	// HistoryLimit caps the per-conversation message log. Count-based, not
	// token-based; kept configurable rather than a fixed constant.
	HistoryLimit int `json:"historyLimit,omitempty"`

	LogLevel string         `json:"logLevel,omitempty"` // debug/info/warn/error
	Bot      bot.Config     `json:"bot"`
	Channels ChannelsConfig `json:"channels"`
}

// ChannelsConfig holds the per-platform adapter configurations
type ChannelsConfig struct {
	Discord  discord.Config  `json:"discord"`
	Slack    slack.Config    `json:"slack"`
	Telegram telegram.Config `json:"telegram"`
	WhatsApp whatsapp.Config `json:"whatsapp"`
}

// Default returns the baseline configuration before file and env merging.
func Default() *Config {
	cfg := &Config{
		HistoryLimit: conversation.DefaultLimit,
		LogLevel:     "info",
	}
	cfg.Bot.Provider.Driver = "anthropic"
	cfg.Bot.Provider.Model = "claude-opus-4-5"
	cfg.Channels.WhatsApp.Listen = ":8090"
	return cfg
}

// Load reads configuration from path, layering file values over defaults
// and environment variables over both. A missing file is not an error;
// tokens are commonly supplied through the environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env-only configuration
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = conversation.DefaultLimit
	}
	return cfg, nil
}

// applyEnv overlays secrets from the environment. Environment wins over
// the file so deployments can keep tokens out of it.
func (c *Config) applyEnv() {
	setIfEnv := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	switch c.Bot.Provider.Driver {
	case "openai":
		setIfEnv(&c.Bot.Provider.APIKey, "OPENAI_API_KEY")
	default:
		setIfEnv(&c.Bot.Provider.APIKey, "ANTHROPIC_API_KEY")
	}

	setIfEnv(&c.Channels.Discord.BotToken, "DISCORD_BOT_TOKEN")
	setIfEnv(&c.Channels.Slack.BotToken, "SLACK_BOT_TOKEN")
	setIfEnv(&c.Channels.Slack.AppToken, "SLACK_APP_TOKEN")
	setIfEnv(&c.Channels.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setIfEnv(&c.Channels.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setIfEnv(&c.Channels.WhatsApp.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	setIfEnv(&c.Channels.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
}
