package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lindenapp/bridgebot/internal/conversation"
	. "github.com/lindenapp/bridgebot/internal/logging"
)

// AnthropicProvider implements Provider against Anthropic's Messages API.
// Also works with Anthropic-compatible APIs via BaseURL.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider creates an Anthropic provider from config.
func NewAnthropicProvider(cfg ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, generationErrorf("anthropic", "anthropic API key not configured")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	L_debug("anthropic provider created", "model", cfg.Model, "maxTokens", maxTokens)

	return &AnthropicProvider{
		client:    &client,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// Name returns the driver name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate performs a non-streaming completion, resolving tool calls until
// the model produces a final answer or the step cap is reached.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := convertAnthropicMessages(req.Messages)
	tools := convertAnthropicTools(req.Tools)
	maxSteps := req.maxSteps()

	for step := 0; step < maxSteps; step++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: int64(p.maxTokens),
			Messages:  messages,
		}
		if req.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		start := time.Now()
		message, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return "", generationError("anthropic", err)
		}

		var text strings.Builder
		var toolUses []anthropic.ToolUseBlock
		for _, block := range message.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(variant.Text)
			case anthropic.ToolUseBlock:
				toolUses = append(toolUses, variant)
			}
		}

		L_debug("anthropic: response received",
			"step", step+1,
			"stopReason", string(message.StopReason),
			"toolUses", len(toolUses),
			"duration", time.Since(start).Round(time.Millisecond),
		)

		if string(message.StopReason) != "tool_use" || len(toolUses) == 0 {
			return text.String(), nil
		}

		// Feed the tool round back into the conversation and continue.
		var assistantBlocks []anthropic.ContentBlockParamUnion
		if text.Len() > 0 {
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(text.String()))
		}
		var resultBlocks []anthropic.ContentBlockParamUnion
		for _, tu := range toolUses {
			inputBytes, _ := json.Marshal(tu.Input)
			var input map[string]any
			_ = json.Unmarshal(inputBytes, &input)

			assistantBlocks = append(assistantBlocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    tu.ID,
					Name:  tu.Name,
					Input: input,
				},
			})

			L_info("anthropic: tool use", "tool", tu.Name, "id", tu.ID)
			result, isErr := runTool(ctx, req.Tools, tu.Name, inputBytes)
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(tu.ID, result, isErr))
		}
		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}

	return "", generationErrorf("anthropic", "no final answer after %d steps", maxSteps)
}

// convertAnthropicMessages converts conversation history to Anthropic format
func convertAnthropicMessages(messages []conversation.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case conversation.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case conversation.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}

// convertAnthropicTools converts tool declarations to Anthropic format
func convertAnthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var properties any
		if props, ok := def.InputSchema["properties"]; ok {
			properties = props
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: properties},
			},
		})
	}
	return result
}
