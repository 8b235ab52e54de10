package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/lindenapp/bridgebot/internal/logging"
)

// webhookPayload mirrors the slice of the Cloud API delivery envelope we
// care about: text messages nested under entry/changes/value.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// handleWebhook serves both halves of the Cloud API webhook contract: the
// GET verification handshake and POST deliveries.
func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		b.handleVerify(w, r)
	case http.MethodPost:
		b.handleDelivery(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleVerify answers the subscription handshake: echo hub.challenge when
// the mode and token match, 403 otherwise.
func (b *Bot) handleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == b.config.VerifyToken {
		logging.L_info("whatsapp: webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	logging.L_warn("whatsapp: webhook verification rejected", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// handleDelivery acks a POST delivery immediately, then processes it on a
// detached goroutine. Meta retries deliveries that are not acked quickly,
// and generation can take far longer than its patience.
func (b *Bot) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logging.L_warn("whatsapp: failed to read delivery body", "error", err)
		body = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if len(body) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logging.L_error("whatsapp: panic while processing delivery", "panic", rec)
			}
		}()
		b.processDelivery(body)
	}()
}

// processDelivery parses one delivery envelope and runs a turn for each
// inbound text message. Malformed or non-message deliveries (status
// updates, read receipts) are dropped silently.
func (b *Bot) processDelivery(body []byte) {
	deliveryID := uuid.NewString()

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logging.L_debug("whatsapp: ignoring unparseable delivery", "delivery", deliveryID, "error", err)
		return
	}
	if payload.Object != "whatsapp_business_account" {
		logging.L_debug("whatsapp: ignoring delivery for object", "delivery", deliveryID, "object", payload.Object)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text.Body == "" {
					continue
				}
				b.handleMessage(deliveryID, msg)
			}
		}
	}
}

// handleMessage runs the shared turn for one inbound text and sends the
// reply. The sender's phone number is the conversation key.
func (b *Bot) handleMessage(deliveryID string, msg inboundMessage) {
	logging.L_debug("whatsapp: message received", "delivery", deliveryID, "from", msg.From)

	// Detached from the lifecycle context: Stop closes the listener but
	// waits (via wg) for deliveries already in flight, so their turn and
	// send must not be aborted by the cancel.
	ctx := context.WithoutCancel(b.ctx)

	reply, err := b.engine.HandleTurn(ctx, msg.From, msg.Text.Body)
	if err != nil {
		// reply already carries the apology; it still goes to the user
		b.setError(err)
	}

	if err := b.sendText(ctx, msg.From, reply); err != nil {
		logging.L_error("whatsapp: failed to send reply", "delivery", deliveryID, "to", msg.From, "error", err)
	}
}

// handleHealth reports liveness for load balancers and uptime checks.
func (b *Bot) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","platform":"whatsapp"}`))
}
