// Package llm provides the generation client used by all channel adapters.
//
// A Provider performs one non-streaming completion over an accumulated
// conversation, running declared tools through the provider's native
// tool-call loop, capped at a configurable number of steps.
package llm

import (
	"context"
	"encoding/json"

	"github.com/lindenapp/bridgebot/internal/conversation"
)

// DefaultMaxSteps caps tool-call/response iterations when the caller
// doesn't specify one.
const DefaultMaxSteps = 5

// ProviderConfig configures a single provider instance.
type ProviderConfig struct {
	Driver         string `json:"driver"`                   // "anthropic" or "openai"
	APIKey         string `json:"apiKey,omitempty"`         // cloud API key
	BaseURL        string `json:"baseURL,omitempty"`        // for compatible endpoints
	Model          string `json:"model"`                    // model identifier
	MaxTokens      int    `json:"maxTokens,omitempty"`      // output limit (default 4096)
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"` // request timeout (0 = none)
}

// ToolDefinition declares a tool the model may call. Run executes the tool
// with the model-supplied JSON input and returns the result text fed back
// into the loop. Tool execution lives inside the generation boundary; the
// channel adapters never see it.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Run         func(ctx context.Context, input json.RawMessage) (string, error)
}

// GenerateRequest is one completion call over a keyed conversation history.
type GenerateRequest struct {
	SystemPrompt string
	Messages     []conversation.Message
	Tools        []ToolDefinition
	MaxSteps     int // 0 = DefaultMaxSteps
}

func (r *GenerateRequest) maxSteps() int {
	if r.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return r.MaxSteps
}

// Provider is a model backend capable of producing completion text.
// All failures are reported as *GenerationError.
type Provider interface {
	// Name returns the driver name ("anthropic", "openai").
	Name() string

	// Generate performs one completion call, resolving tool calls
	// internally, and returns the final text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// findTool looks up a declared tool by name.
func findTool(tools []ToolDefinition, name string) *ToolDefinition {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}

// runTool executes a tool call, mapping a missing tool or a tool failure to
// result text the model can act on. The provider-side loop keeps going; a
// tool error is data, not a transport failure.
func runTool(ctx context.Context, tools []ToolDefinition, name string, input json.RawMessage) (string, bool) {
	tool := findTool(tools, name)
	if tool == nil {
		return "unknown tool: " + name, true
	}
	result, err := tool.Run(ctx, input)
	if err != nil {
		return "tool error: " + err.Error(), true
	}
	return result, false
}
