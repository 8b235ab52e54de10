package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lindenapp/bridgebot/internal/bot"
	"github.com/lindenapp/bridgebot/internal/conversation"
	"github.com/lindenapp/bridgebot/internal/llm"
)

type stubProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.replies) == 0 {
		return "ok", nil
	}
	reply := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return reply, nil
}

func newTestBot(t *testing.T, provider llm.Provider) *Bot {
	t.Helper()
	engine := bot.NewEngine(conversation.NewStore(0), provider, bot.Config{})
	b, err := New(&Config{
		VerifyToken:   "secret-verify",
		AccessToken:   "test-token",
		PhoneNumberID: "12345",
	}, engine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

func TestVerifySuccess(t *testing.T) {
	b := newTestBot(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secret-verify&hub.challenge=314159", nil)
	rec := httptest.NewRecorder()
	b.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "314159" {
		t.Errorf("body = %q, want challenge echoed verbatim", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("content type = %q, want text/plain", ct)
	}
}

func TestVerifyRejected(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"wrong token", "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=secret-verify&hub.challenge=1"},
		{"missing params", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBot(t, &stubProvider{})
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			rec := httptest.NewRecorder()
			b.handleWebhook(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
		})
	}
}

func deliveryBody(from, text string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": %q, "type": "text", "text": {"body": %q}}
		]}}]}]
	}`, from, text)
}

func TestDeliveryAckedAndProcessed(t *testing.T) {
	var mu sync.Mutex
	var sent []map[string]any

	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/12345/messages") {
			t.Errorf("path = %q, want phone number id messages endpoint", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("outbound body not json: %v", err)
		}
		mu.Lock()
		sent = append(sent, payload)
		mu.Unlock()
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer graph.Close()

	provider := &stubProvider{replies: []string{"hello back"}}
	b := newTestBot(t, provider)
	b.baseURL = graph.URL

	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(deliveryBody("15551234567", "hi")))
	rec := httptest.NewRecorder()
	b.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("ack body = %q", got)
	}

	b.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("sent %d outbound messages, want 1", len(sent))
	}
	msg := sent[0]
	if msg["messaging_product"] != "whatsapp" {
		t.Errorf("messaging_product = %v", msg["messaging_product"])
	}
	if msg["to"] != "15551234567" {
		t.Errorf("to = %v", msg["to"])
	}
	text, _ := msg["text"].(map[string]any)
	if text["body"] != "hello back" {
		t.Errorf("text body = %v", text["body"])
	}

	history := b.engine.Store().Get("15551234567")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != conversation.RoleUser || history[1].Role != conversation.RoleAssistant {
		t.Errorf("history roles = %v, %v", history[0].Role, history[1].Role)
	}
}

func TestMalformedDeliveryStillAcked(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not valid json`},
		{"wrong object", `{"object": "page", "entry": []}`},
		{"empty body", ""},
		{"no messages", `{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {}}]}]}`},
		{"non-text message", deliveryNonText()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{}
			b := newTestBot(t, provider)

			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			b.handleWebhook(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if got := rec.Body.String(); got != `{"status":"ok"}` {
				t.Errorf("ack body = %q", got)
			}

			b.wg.Wait()
			provider.mu.Lock()
			calls := provider.calls
			provider.mu.Unlock()
			if calls != 0 {
				t.Errorf("provider called %d times, want 0", calls)
			}
		})
	}
}

func deliveryNonText() string {
	return `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "15551234567", "type": "image"}
		]}}]}]
	}`
}

func TestHealth(t *testing.T) {
	b := newTestBot(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	b.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != `{"status":"healthy","platform":"whatsapp"}` {
		t.Errorf("body = %q", got)
	}
}

type blockingProvider struct {
	started chan struct{}
	release chan struct{}
	turnCtx context.Context
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	p.turnCtx = ctx
	close(p.started)
	<-p.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "late reply", nil
}

func TestStopDoesNotAbortInFlightTurn(t *testing.T) {
	var mu sync.Mutex
	var sends int
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sends++
		mu.Unlock()
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer graph.Close()

	provider := &blockingProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	b := newTestBot(t, provider)
	b.baseURL = graph.URL

	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(deliveryBody("15551234567", "hi")))
	b.handleWebhook(httptest.NewRecorder(), req)

	<-provider.started
	// Lifecycle teardown racing the turn that is still generating
	b.cancel()
	close(provider.release)
	b.wg.Wait()

	if provider.turnCtx.Err() != nil {
		t.Error("turn context was canceled by shutdown")
	}
	mu.Lock()
	defer mu.Unlock()
	if sends != 1 {
		t.Errorf("sent %d replies, want 1", sends)
	}
}

func TestHealthRejectsNonGet(t *testing.T) {
	b := newTestBot(t, &stubProvider{})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/health", nil)
		rec := httptest.NewRecorder()
		b.handleHealth(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s /health status = %d, want 404", method, rec.Code)
		}
	}
}

func TestWebhookRejectsOtherMethods(t *testing.T) {
	b := newTestBot(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodDelete, "/webhook", nil)
	rec := httptest.NewRecorder()
	b.handleWebhook(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSendTextErrorStatus(t *testing.T) {
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad token"}}`))
	}))
	defer graph.Close()

	b := newTestBot(t, &stubProvider{})
	b.baseURL = graph.URL

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.sendText(ctx, "15551234567", "hi")
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v, want status code mentioned", err)
	}
}
