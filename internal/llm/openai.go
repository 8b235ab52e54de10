package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lindenapp/bridgebot/internal/conversation"
	. "github.com/lindenapp/bridgebot/internal/logging"
)

// OpenAIProvider implements Provider against the OpenAI chat completions
// API, or any OpenAI-compatible endpoint via BaseURL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider from config.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, generationErrorf("openai", "openai API key not configured")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.TimeoutSeconds > 0 {
		config.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	client := openai.NewClientWithConfig(config)

	L_debug("openai provider created", "model", cfg.Model, "baseURL", config.BaseURL)

	return &OpenAIProvider{
		client: client,
		model:  cfg.Model,
	}, nil
}

// Name returns the driver name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate performs a non-streaming completion, resolving tool calls until
// the model produces a final answer or the step cap is reached.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := convertOpenAIMessages(req.SystemPrompt, req.Messages)
	tools := convertOpenAITools(req.Tools)
	maxSteps := req.maxSteps()

	for step := 0; step < maxSteps; step++ {
		chatReq := openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: messages,
		}
		if len(tools) > 0 {
			chatReq.Tools = tools
		}

		start := time.Now()
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return "", generationError("openai", err)
		}
		if len(resp.Choices) == 0 {
			return "", generationErrorf("openai", "empty completion response")
		}

		choice := resp.Choices[0].Message
		L_debug("openai: response received",
			"step", step+1,
			"finishReason", string(resp.Choices[0].FinishReason),
			"toolCalls", len(choice.ToolCalls),
			"duration", time.Since(start).Round(time.Millisecond),
		)

		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		// Feed the tool round back into the conversation and continue.
		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   choice.Content,
			ToolCalls: choice.ToolCalls,
		})
		for _, tc := range choice.ToolCalls {
			L_info("openai: tool call", "tool", tc.Function.Name, "id", tc.ID)
			result, _ := runTool(ctx, req.Tools, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", generationErrorf("openai", "no final answer after %d steps", maxSteps)
}

// convertOpenAIMessages converts conversation history to OpenAI format,
// prepending the system prompt when present.
func convertOpenAIMessages(systemPrompt string, messages []conversation.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if msg.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return result
}

// convertOpenAITools converts tool declarations to OpenAI function format
func convertOpenAITools(defs []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return result
}
