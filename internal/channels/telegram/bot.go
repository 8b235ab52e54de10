// Package telegram provides the Telegram channel adapter for bridgebot.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/lindenapp/bridgebot/internal/bot"
	"github.com/lindenapp/bridgebot/internal/channels/types"
	"github.com/lindenapp/bridgebot/internal/logging"
)

// Config holds the Telegram adapter configuration
type Config struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
}

// Bot represents the Telegram channel adapter
type Bot struct {
	bot    *tele.Bot
	engine *bot.Engine
	config *Config

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	lastError error
}

// New creates a new Telegram adapter
func New(cfg *Config, engine *bot.Engine) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	b := &Bot{
		engine: engine,
		config: cfg,
	}

	pref := tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.bot = teleBot

	b.bot.Handle(tele.OnText, b.handleText)

	return b, nil
}

// Name returns the channel identifier
func (b *Bot) Name() string { return "telegram" }

// Start begins long polling. The poll loop runs in a background goroutine.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	logging.L_info("telegram: starting long poller", "bot", b.bot.Me.Username)

	go b.bot.Start()

	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.lastError = nil
	b.mu.Unlock()

	return nil
}

// Stop halts long polling
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.bot.Stop()

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	logging.L_info("telegram: stopped")
	return nil
}

// Status returns the current channel status
func (b *Bot) Status() types.ChannelStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := ""
	if b.bot != nil && b.bot.Me != nil {
		info = "@" + b.bot.Me.Username
	}
	return types.ChannelStatus{
		Running:   b.running,
		Connected: b.running,
		Error:     b.lastError,
		StartedAt: b.startedAt,
		Info:      info,
	}
}

// handleText processes one inbound text message. Each chat holds its own
// history, shared by every participant in a group chat.
func (b *Bot) handleText(c tele.Context) error {
	text := c.Text()
	if text == "" {
		return nil
	}

	key := chatKey(c.Chat().ID)
	logging.L_debug("telegram: message received", "chat", key, "from", c.Sender().Username)

	// Best effort; a failed typing notification never blocks the turn
	if err := c.Notify(tele.Typing); err != nil {
		logging.L_debug("telegram: typing notification failed", "error", err)
	}

	// Detached from the lifecycle context: Stop halts polling but leaves
	// a turn already running to finish.
	reply, err := b.engine.HandleTurn(context.WithoutCancel(b.ctx), key, text)
	if err != nil {
		b.mu.Lock()
		b.lastError = err
		b.mu.Unlock()
	}

	return b.send(c, reply)
}

// send delivers a reply with markdown formatting, falling back to plain
// text when Telegram rejects the entity parse.
func (b *Bot) send(c tele.Context, text string) error {
	err := c.Send(text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	if err != nil {
		logging.L_debug("telegram: markdown send failed, retrying as plain text", "error", err)
		return c.Send(text)
	}
	return nil
}

// chatKey derives the conversation key from a numeric chat ID.
func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
