// Package slack provides the Slack channel adapter for bridgebot.
//
// The adapter rides a Socket Mode connection with two independently
// toggleable inbound surfaces: app mentions in shared channels and direct
// messages. Conversation keys are thread-scoped so parallel threads in one
// channel hold separate histories.
package slack

import (
	"context"
	"fmt"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/lindenapp/bridgebot/internal/bot"
	"github.com/lindenapp/bridgebot/internal/channels/types"
	"github.com/lindenapp/bridgebot/internal/logging"
)

// Config holds the Slack adapter configuration
type Config struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"` // xoxb-
	AppToken string `json:"appToken"` // xapp-, required for Socket Mode

	// Mentions enables the app_mention surface (default true)
	Mentions *bool `json:"mentions,omitempty"`

	// DirectMessages enables the DM surface (default true)
	DirectMessages *bool `json:"directMessages,omitempty"`
}

func (c *Config) mentions() bool       { return c.Mentions == nil || *c.Mentions }
func (c *Config) directMessages() bool { return c.DirectMessages == nil || *c.DirectMessages }

// Bot represents the Slack channel adapter
type Bot struct {
	api    *slackapi.Client
	client *socketmode.Client
	engine *bot.Engine
	config *Config

	botUserID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	lastError error
}

// New creates a new Slack adapter
func New(cfg *Config, engine *bot.Engine) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack bot token not configured")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack app token not configured (socket mode requires an app-level token)")
	}

	api := slackapi.New(cfg.BotToken, slackapi.OptionAppLevelToken(cfg.AppToken))

	return &Bot{
		api:    api,
		client: socketmode.New(api),
		engine: engine,
		config: cfg,
	}, nil
}

// Name returns the channel identifier
func (b *Bot) Name() string { return "slack" }

// Start authenticates, opens the Socket Mode connection, and begins
// dispatching events. Blocks only for the auth check; the socket loop runs
// in background goroutines.
func (b *Bot) Start(ctx context.Context) error {
	auth, err := b.api.AuthTestContext(ctx)
	if err != nil {
		b.setError(err)
		return fmt.Errorf("slack auth failed: %w", err)
	}
	b.botUserID = auth.UserID

	logging.L_info("slack: connected",
		"bot", auth.User,
		"userID", auth.UserID,
		"team", auth.Team,
		"mentions", b.config.mentions(),
		"directMessages", b.config.directMessages(),
	)

	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		if err := b.client.RunContext(b.ctx); err != nil && b.ctx.Err() == nil {
			logging.L_error("slack: socket mode loop exited", "error", err)
			b.setError(err)
		}
	}()
	go func() {
		defer b.wg.Done()
		b.dispatchEvents()
	}()

	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.lastError = nil
	b.mu.Unlock()

	return nil
}

// Stop tears down the Socket Mode connection. An in-flight generation is
// not aborted; its reply send simply fails once the client is gone.
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	logging.L_info("slack: stopped")
	return nil
}

// Status returns the current channel status
func (b *Bot) Status() types.ChannelStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := ""
	if b.botUserID != "" {
		info = "<@" + b.botUserID + ">"
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

// dispatchEvents consumes the socket mode event stream until shutdown.
// Events are handled run-to-completion, one at a time.
func (b *Bot) dispatchEvents() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case evt, ok := <-b.client.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				logging.L_debug("slack: socket connected")
			case socketmode.EventTypeConnectionError:
				logging.L_warn("slack: socket connection error", "data", evt.Data)
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				// Ack before processing; Slack redelivers unacked events.
				if evt.Request != nil {
					b.client.Ack(*evt.Request)
				}
				b.handleEventsAPI(apiEvent)
			}
		}
	}
}

// handleEventsAPI routes one Events API callback to the right surface.
func (b *Bot) handleEventsAPI(apiEvent slackevents.EventsAPIEvent) {
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.handleMention(ev)
	case *slackevents.MessageEvent:
		b.handleDirectMessage(ev)
	}
}

// handleMention processes an @mention in a shared channel.
func (b *Bot) handleMention(ev *slackevents.AppMentionEvent) {
	if !b.config.mentions() {
		return
	}

	text := stripMention(ev.Text, b.botUserID)
	if text == "" {
		logging.L_debug("slack: ignoring empty mention", "channel", ev.Channel)
		return
	}

	// Mentions always key (and reply) by thread, falling back to the
	// event's own timestamp so a bare channel mention starts a thread.
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	key := conversationKey(ev.Channel, threadTS)

	logging.L_debug("slack: mention received", "channel", ev.Channel, "user", ev.User, "key", key)
	b.runTurn(key, text, ev.Channel, threadTS)
}

// handleDirectMessage processes a message event on the DM surface.
func (b *Bot) handleDirectMessage(ev *slackevents.MessageEvent) {
	if !b.config.directMessages() {
		return
	}
	// Edits, deletions and other subtyped events are not turns
	if ev.SubType != "" {
		return
	}
	if ev.Text == "" {
		return
	}
	if ev.BotID != "" || ev.User == "" || ev.User == b.botUserID {
		return
	}
	if ev.ChannelType != "im" {
		return
	}

	// DMs key by thread only when the message is actually in one
	key := ev.Channel
	if ev.ThreadTimeStamp != "" {
		key = conversationKey(ev.Channel, ev.ThreadTimeStamp)
	}

	logging.L_debug("slack: dm received", "channel", ev.Channel, "user", ev.User, "key", key)
	b.runTurn(key, ev.Text, ev.Channel, ev.ThreadTimeStamp)
}

// runTurn executes the shared turn and sends the reply into the thread
// context that produced the inbound event. Per-message failures never take
// down the socket.
func (b *Bot) runTurn(key, text, channel, threadTS string) {
	// Detached from the lifecycle context: Stop closes the socket but
	// leaves a turn already running to finish and send.
	ctx := context.WithoutCancel(b.ctx)

	reply, err := b.engine.HandleTurn(ctx, key, text)
	if err != nil {
		// reply already carries the apology; it still goes out below
		b.setError(err)
	}

	opts := []slackapi.MsgOption{slackapi.MsgOptionText(reply, false)}
	if threadTS != "" {
		opts = append(opts, slackapi.MsgOptionTS(threadTS))
	}
	if _, _, err := b.api.PostMessageContext(ctx, channel, opts...); err != nil {
		logging.L_error("slack: failed to send reply", "channel", channel, "error", err)
	}
}
