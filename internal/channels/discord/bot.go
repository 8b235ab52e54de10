// Package discord provides the Discord channel adapter for bridgebot.
//
// The adapter rides the Discord gateway socket: every qualifying
// MessageCreate event becomes one conversation turn keyed by channel ID.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lindenapp/bridgebot/internal/bot"
	"github.com/lindenapp/bridgebot/internal/channels/types"
	"github.com/lindenapp/bridgebot/internal/logging"
)

// maxDiscordMessage is Discord's hard per-message length limit.
const maxDiscordMessage = 2000

// Config holds the Discord adapter configuration
type Config struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`

	// IgnoreBots skips messages from other automated senders (default true)
	IgnoreBots *bool `json:"ignoreBots,omitempty"`

	// Channels restricts the adapter to an allow-list of channel IDs.
	// Empty means all channels the bot can see.
	Channels []string `json:"channels,omitempty"`
}

func (c *Config) ignoreBots() bool {
	return c.IgnoreBots == nil || *c.IgnoreBots
}

// Bot represents the Discord channel adapter
type Bot struct {
	session *discordgo.Session
	engine  *bot.Engine
	config  *Config

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	lastError error
}

// New creates a new Discord adapter
func New(cfg *Config, engine *bot.Engine) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("discord bot token not configured")
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		session: session,
		engine:  engine,
		config:  cfg,
	}
	session.AddHandler(b.handleMessageCreate)

	return b, nil
}

// Name returns the channel identifier
func (b *Bot) Name() string { return "discord" }

// Start opens the gateway connection. Blocks until the socket is up.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.session.Open(); err != nil {
		b.setError(err)
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}

	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.lastError = nil
	b.mu.Unlock()

	if b.session.State != nil && b.session.State.User != nil {
		logging.L_info("discord: connected", "bot", b.session.State.User.Username, "id", b.session.State.User.ID)
	} else {
		logging.L_info("discord: connected")
	}
	return nil
}

// Stop closes the gateway connection. In-flight turns are not aborted;
// their results are discarded when the send fails against a closed session.
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.session.Close()

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	logging.L_info("discord: stopped")
	return err
}

// Status returns the current channel status
func (b *Bot) Status() types.ChannelStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := ""
	if b.session.State != nil && b.session.State.User != nil {
		info = "@" + b.session.State.User.Username
	}
	return types.ChannelStatus{
		Running:   b.running,
		Connected: b.running,
		Error:     b.lastError,
		StartedAt: b.startedAt,
		Info:      info,
	}
}

func (b *Bot) setError(err error) {
	b.mu.Lock()
	b.lastError = err
	b.mu.Unlock()
}

// channelAllowed checks the configured allow-list
func (b *Bot) channelAllowed(channelID string) bool {
	if len(b.config.Channels) == 0 {
		return true
	}
	for _, id := range b.config.Channels {
		if id == channelID {
			return true
		}
	}
	return false
}

// handleMessageCreate runs one conversation turn for an inbound message.
// A failure here never tears down the gateway connection.
func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Content == "" {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if b.config.ignoreBots() && m.Author.Bot {
		return
	}
	if !b.channelAllowed(m.ChannelID) {
		logging.L_debug("discord: ignoring message outside channel allow-list", "channel", m.ChannelID)
		return
	}

	logging.L_debug("discord: message received", "channel", m.ChannelID, "author", m.Author.ID)

	if err := s.ChannelTyping(m.ChannelID); err != nil {
		logging.L_debug("discord: typing indicator failed", "error", err)
	}

	// Detached from the lifecycle context: Stop releases the gateway but
	// leaves a turn already running to finish.
	reply, err := b.engine.HandleTurn(context.WithoutCancel(b.ctx), m.ChannelID, m.Content)
	if err != nil {
		// reply already carries the apology; it still goes out below
		b.setError(err)
	}

	for i, chunk := range splitMessage(reply, maxDiscordMessage) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			logging.L_error("discord: failed to send message chunk", "error", err, "chunk", i+1)
			return
		}
	}
}
