// Package channels owns the lifecycle of all platform adapters.
package channels

import (
	"context"
	"sync"
	"time"

	"github.com/lindenapp/bridgebot/internal/bot"
	"github.com/lindenapp/bridgebot/internal/channels/discord"
	"github.com/lindenapp/bridgebot/internal/channels/slack"
	"github.com/lindenapp/bridgebot/internal/channels/telegram"
	"github.com/lindenapp/bridgebot/internal/channels/types"
	"github.com/lindenapp/bridgebot/internal/channels/whatsapp"
	"github.com/lindenapp/bridgebot/internal/config"
	"github.com/lindenapp/bridgebot/internal/conversation"
	"github.com/lindenapp/bridgebot/internal/llm"
	. "github.com/lindenapp/bridgebot/internal/logging"
)

// ManagedChannel is re-exported from types for convenience
type ManagedChannel = types.ManagedChannel

// ChannelStatus is re-exported from types for convenience
type ChannelStatus = types.ChannelStatus

// Manager owns the lifecycle of all platform adapters. Each adapter gets
// its own engine with a private conversation store, so histories never
// bleed between platforms.
type Manager struct {
	provider     llm.Provider
	botCfg       bot.Config
	historyLimit int

	channels map[string]ManagedChannel
	mu       sync.RWMutex

	retryCancels []context.CancelFunc
}

// NewManager creates a new channel manager
func NewManager(provider llm.Provider, botCfg bot.Config, historyLimit int) *Manager {
	return &Manager{
		provider:     provider,
		botCfg:       botCfg,
		historyLimit: historyLimit,
		channels:     make(map[string]ManagedChannel),
	}
}

// newEngine builds a fresh engine with its own store for one adapter
func (m *Manager) newEngine() *bot.Engine {
	return bot.NewEngine(conversation.NewStore(m.historyLimit), m.provider, m.botCfg)
}

// StartAll starts every enabled channel from config. A channel that fails
// to start is retried in the background with exponential backoff; one bad
// channel never blocks the others.
func (m *Manager) StartAll(ctx context.Context, cfg config.ChannelsConfig) error {
	if cfg.Discord.Enabled {
		m.launch(ctx, "discord", func() (ManagedChannel, error) {
			return discord.New(&cfg.Discord, m.newEngine())
		})
	} else {
		L_info("discord: disabled by configuration")
	}

	if cfg.Slack.Enabled {
		m.launch(ctx, "slack", func() (ManagedChannel, error) {
			return slack.New(&cfg.Slack, m.newEngine())
		})
	} else {
		L_info("slack: disabled by configuration")
	}

	if cfg.Telegram.Enabled {
		m.launch(ctx, "telegram", func() (ManagedChannel, error) {
			return telegram.New(&cfg.Telegram, m.newEngine())
		})
	} else {
		L_info("telegram: disabled by configuration")
	}

	if cfg.WhatsApp.Enabled {
		m.launch(ctx, "whatsapp", func() (ManagedChannel, error) {
			return whatsapp.New(&cfg.WhatsApp, m.newEngine())
		})
	} else {
		L_info("whatsapp: disabled by configuration")
	}

	m.mu.RLock()
	count := len(m.channels)
	m.mu.RUnlock()
	L_info("channels: startup complete", "running", count)

	return nil
}

// launch attempts an immediate start and falls back to background retry.
func (m *Manager) launch(ctx context.Context, name string, build func() (ManagedChannel, error)) {
	if err := m.startOne(ctx, name, build); err != nil {
		L_warn(name+": initial start failed, will retry in background", "error", err)
		m.startRetry(ctx, name, build)
	}
}

// startOne builds and starts a single channel, registering it on success
func (m *Manager) startOne(ctx context.Context, name string, build func() (ManagedChannel, error)) error {
	ch, err := build()
	if err != nil {
		return err
	}

	if err := ch.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.channels[name] = ch
	m.mu.Unlock()

	L_info(name + ": channel ready and listening")
	return nil
}

// startRetry retries a failed channel start with exponential backoff,
// 5s doubling up to 5m, until it succeeds or shutdown cancels it.
func (m *Manager) startRetry(ctx context.Context, name string, build func() (ManagedChannel, error)) {
	retryCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.retryCancels = append(m.retryCancels, cancel)
	m.mu.Unlock()

	go func() {
		backoff := 5 * time.Second
		maxBackoff := 5 * time.Minute
		attempt := 1

		for {
			select {
			case <-retryCtx.Done():
				L_info(name + ": shutdown requested, stopping retry")
				return
			case <-time.After(backoff):
			}

			L_info(name+": retrying start", "attempt", attempt, "backoff", backoff)

			if err := m.startOne(retryCtx, name, build); err != nil {
				L_warn(name+": start failed", "error", err, "nextRetry", backoff)
				attempt++
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}

			L_info(name+": channel ready after retry", "attempts", attempt)
			return
		}
	}()
}

// StopAll gracefully shuts down all running channels
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cancel := range m.retryCancels {
		cancel()
	}
	m.retryCancels = nil

	for name, ch := range m.channels {
		L_debug("channels: stopping", "channel", name)
		if err := ch.Stop(); err != nil {
			L_error("channels: stop failed", "channel", name, "error", err)
		}
	}
	m.channels = make(map[string]ManagedChannel)
}

// Get returns a channel by name, or nil if not found
func (m *Manager) Get(name string) ManagedChannel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// Status returns the status of all running channels
func (m *Manager) Status() map[string]ChannelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]ChannelStatus, len(m.channels))
	for name, ch := range m.channels {
		result[name] = ch.Status()
	}
	return result
}
