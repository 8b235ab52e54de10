// Package bot implements the shared, platform-agnostic turn engine.
//
// Every channel adapter reduces an inbound platform event to a conversation
// key and raw text, hands both to the engine, and translates the returned
// reply into its platform's native send. The engine owns the turn sequence:
// append the user turn, generate over the keyed history, append the
// assistant turn on success.
package bot

import (
	"context"
	"fmt"

	"github.com/lindenapp/bridgebot/internal/conversation"
	"github.com/lindenapp/bridgebot/internal/llm"
	"github.com/lindenapp/bridgebot/internal/logging"
)

// Config holds the generation settings shared by every conversation an
// adapter handles. Immutable for the adapter's lifetime.
type Config struct {
	Provider     llm.ProviderConfig `json:"provider"`
	SystemPrompt string             `json:"systemPrompt,omitempty"`
	MaxSteps     int                `json:"maxSteps,omitempty"` // tool-call iterations (default 5)
}

// Engine runs turns against one conversation store and one provider.
type Engine struct {
	store    *conversation.Store
	provider llm.Provider
	cfg      Config
	tools    []llm.ToolDefinition
}

// NewEngine creates a turn engine. The store is injected so multiple
// engines can be composed without hidden shared state, and so tests can
// inspect history directly.
func NewEngine(store *conversation.Store, provider llm.Provider, cfg Config, tools ...llm.ToolDefinition) *Engine {
	return &Engine{
		store:    store,
		provider: provider,
		cfg:      cfg,
		tools:    tools,
	}
}

// Store returns the engine's conversation store.
func (e *Engine) Store() *conversation.Store {
	return e.store
}

// HandleTurn runs one conversation turn for the given key.
//
// The user turn is appended before generation. On success the assistant
// turn is appended and the reply returned. On failure the apology string is
// returned along with the error; the failed turn leaves only the user turn
// in history, so the conversation stays usable.
func (e *Engine) HandleTurn(ctx context.Context, key, text string) (string, error) {
	e.store.Append(key, conversation.Message{Role: conversation.RoleUser, Content: text})

	reply, err := e.provider.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: e.cfg.SystemPrompt,
		Messages:     e.store.Get(key),
		Tools:        e.tools,
		MaxSteps:     e.cfg.MaxSteps,
	})
	if err != nil {
		logging.L_error("bot: generation failed", "key", key, "error", err)
		return Apology(err), err
	}

	e.store.Append(key, conversation.Message{Role: conversation.RoleAssistant, Content: reply})
	return reply, nil
}

// Apology formats the user-visible reply for a failed generation.
func Apology(err error) string {
	return fmt.Sprintf("Sorry, I encountered an error: %s", err.Error())
}
