package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kaiwa-ai/kaiwa/internal/gateway"
)

// AnthropicConfig configures the Claude adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Anthropic implements gateway.Adapter for the Claude messages API.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

var _ gateway.Adapter = (*Anthropic)(nil)

// NewAnthropic creates a Claude adapter.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		client:       anthropic.NewClient(options...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns the canonical adapter name.
func (a *Anthropic) Name() string { return "anthropic" }

// Generate sends a messages request and collects the response blocks.
func (a *Anthropic) Generate(ctx context.Context, prompt string, opts *gateway.GenerateOptions) (*gateway.CompletionResult, error) {
	if opts == nil {
		opts = &gateway.GenerateOptions{}
	}
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model: anthropic.Model(model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		MaxTokens: int64(maxTokensOrDefault(opts.MaxTokens)),
	}
	// System prompts live outside the message list in this API.
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: opts.System},
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err, model)
	}

	var text strings.Builder
	var toolCalls []gateway.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			raw, _ := json.Marshal(toolUse.Input)
			toolCalls = append(toolCalls, gateway.ToolCall{
				ID:    toolUse.Name,
				Input: decodeArguments(string(raw)),
			})
		}
	}

	return &gateway.CompletionResult{
		Text: text.String(),
		Usage: gateway.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
		ToolCalls: toolCalls,
	}, nil
}

// CountTokens estimates the token count at roughly 4 characters per
// token, which tracks English text under the Claude tokenizer closely
// enough for window budgeting.
func (a *Anthropic) CountTokens(_ context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

func (a *Anthropic) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return gateway.NewAdapterError("anthropic", model, err).WithStatus(apiErr.StatusCode)
	}
	return gateway.NewAdapterError("anthropic", model, err)
}

func maxTokensOrDefault(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}
