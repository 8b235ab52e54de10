// Package whatsapp provides the WhatsApp Cloud API channel adapter for
// bridgebot.
//
// Unlike the socket and polling channels this adapter is entirely
// webhook-driven: Meta delivers inbound messages to an HTTP server we run,
// and replies go out through the Graph API. Deliveries are acked
// immediately and processed on detached goroutines, so the Cloud API never
// sees generation latency.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lindenapp/bridgebot/internal/bot"
	"github.com/lindenapp/bridgebot/internal/channels/types"
	"github.com/lindenapp/bridgebot/internal/logging"
)

// Bot represents the WhatsApp Cloud API channel adapter
type Bot struct {
	engine *bot.Engine
	config *Config

	server *http.Server
	client *http.Client

	// baseURL overrides the Graph API endpoint in tests
	baseURL string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	lastError error
}

// New creates a new WhatsApp adapter
func New(cfg *Config, engine *bot.Engine) (*Bot, error) {
	if cfg.VerifyToken == "" {
		return nil, fmt.Errorf("whatsapp verify token not configured")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token not configured")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id not configured")
	}

	b := &Bot{
		engine:  engine,
		config:  cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: fmt.Sprintf("https://%s/%s", cfg.graphHost(), cfg.apiVersion()),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", b.handleHealth)

	b.server = &http.Server{
		Addr:         cfg.listen(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return b, nil
}

// Name returns the channel identifier
func (b *Bot) Name() string { return "whatsapp" }

// Start binds the webhook listener. The bind happens synchronously so a
// port conflict surfaces here rather than in the serve goroutine.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", b.server.Addr)
	if err != nil {
		b.setError(err)
		return fmt.Errorf("failed to bind webhook listener on %s: %w", b.server.Addr, err)
	}

	logging.L_info("whatsapp: webhook server listening", "addr", ln.Addr().String())

	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.L_error("whatsapp: webhook server exited", "error", err)
			b.setError(err)
		}
	}()

	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.lastError = nil
	b.mu.Unlock()

	return nil
}

// Stop shuts down the webhook server and waits for in-flight deliveries to
// finish processing.
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.server.Shutdown(shutdownCtx); err != nil {
		logging.L_warn("whatsapp: webhook server shutdown", "error", err)
	}
	b.wg.Wait()

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	logging.L_info("whatsapp: stopped")
	return nil
}

// Status returns the current channel status
func (b *Bot) Status() types.ChannelStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return types.ChannelStatus{
		Running:   b.running,
		Connected: b.running,
		Error:     b.lastError,
		StartedAt: b.startedAt,
		Info:      b.config.listen(),
	}
}

func (b *Bot) setError(err error) {
	b.mu.Lock()
	b.lastError = err
	b.mu.Unlock()
}

// sendText delivers one outbound text message through the Graph API.
// Failures are returned, never retried.
func (b *Bot) sendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", b.baseURL, b.config.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph api returned %d: %s", resp.StatusCode, detail)
	}

	return nil
}
