package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lindenapp/bridgebot/internal/conversation"
	"github.com/lindenapp/bridgebot/internal/llm"
)

// fakeProvider returns a canned reply or error and records requests.
type fakeProvider struct {
	reply    string
	err      error
	requests []llm.GenerateRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestHandleTurnSuccess(t *testing.T) {
	store := conversation.NewStore(20)
	provider := &fakeProvider{reply: "the answer"}
	engine := NewEngine(store, provider, Config{SystemPrompt: "be brief"})

	reply, err := engine.HandleTurn(context.Background(), "chan-1", "a question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "the answer" {
		t.Errorf("reply = %q, want %q", reply, "the answer")
	}

	history := store.Get("chan-1")
	if len(history) != 2 {
		t.Fatalf("expected 2 messages in history, got %d", len(history))
	}
	if history[0].Role != conversation.RoleUser || history[0].Content != "a question" {
		t.Errorf("unexpected user turn: %+v", history[0])
	}
	if history[1].Role != conversation.RoleAssistant || history[1].Content != "the answer" {
		t.Errorf("unexpected assistant turn: %+v", history[1])
	}
}

func TestHandleTurnAppendsUserBeforeGeneration(t *testing.T) {
	store := conversation.NewStore(20)
	provider := &fakeProvider{reply: "ok"}
	engine := NewEngine(store, provider, Config{})

	if _, err := engine.HandleTurn(context.Background(), "k", "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The request passed to the provider must already contain the user turn.
	if len(provider.requests) != 1 {
		t.Fatalf("expected 1 generate call, got %d", len(provider.requests))
	}
	msgs := provider.requests[0].Messages
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != "first" {
		t.Errorf("user turn not visible to generation: %+v", msgs)
	}
}

func TestHandleTurnFailure(t *testing.T) {
	store := conversation.NewStore(20)
	provider := &fakeProvider{err: &llm.GenerationError{Provider: "fake", Message: "rate limited"}}
	engine := NewEngine(store, provider, Config{})

	reply, err := engine.HandleTurn(context.Background(), "chan-2", "hello?")
	if err == nil {
		t.Fatal("expected error")
	}
	if reply != "Sorry, I encountered an error: rate limited" {
		t.Errorf("apology = %q", reply)
	}

	// History keeps the user turn but no assistant turn.
	history := store.Get("chan-2")
	if len(history) != 1 {
		t.Fatalf("expected 1 message in history, got %d", len(history))
	}
	if history[0].Role != conversation.RoleUser {
		t.Errorf("expected lone user turn, got %+v", history[0])
	}
}

func TestConversationUsableAfterFailure(t *testing.T) {
	store := conversation.NewStore(20)
	provider := &fakeProvider{err: errors.New("boom")}
	engine := NewEngine(store, provider, Config{})

	_, _ = engine.HandleTurn(context.Background(), "k", "turn 1")

	provider.err = nil
	provider.reply = "recovered"
	reply, err := engine.HandleTurn(context.Background(), "k", "turn 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "recovered" {
		t.Errorf("reply = %q", reply)
	}

	history := store.Get("k")
	if len(history) != 3 { // turn 1 user, turn 2 user, turn 2 assistant
		t.Fatalf("expected 3 messages, got %d: %+v", len(history), history)
	}
}

// Every assistant turn in history is preceded by the user turn that
// triggered it, even across the eviction boundary.
func TestAssistantAlwaysFollowsUser(t *testing.T) {
	store := conversation.NewStore(20)
	provider := &fakeProvider{}
	engine := NewEngine(store, provider, Config{})

	for i := 0; i < 15; i++ {
		provider.reply = fmt.Sprintf("reply-%d", i)
		if _, err := engine.HandleTurn(context.Background(), "k", fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	history := store.Get("k")
	if len(history) != 20 {
		t.Fatalf("expected capped history of 20, got %d", len(history))
	}
	for i, msg := range history {
		if msg.Role == conversation.RoleAssistant {
			if i == 0 || history[i-1].Role != conversation.RoleUser {
				t.Errorf("assistant turn at %d not preceded by user turn", i)
			}
		}
	}
}

func TestMaxStepsPassedThrough(t *testing.T) {
	store := conversation.NewStore(20)
	provider := &fakeProvider{reply: "ok"}
	engine := NewEngine(store, provider, Config{MaxSteps: 3})

	_, _ = engine.HandleTurn(context.Background(), "k", "hi")
	if got := provider.requests[0].MaxSteps; got != 3 {
		t.Errorf("MaxSteps = %d, want 3", got)
	}
}
