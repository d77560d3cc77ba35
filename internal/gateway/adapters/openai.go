// Package adapters contains model backend adapter implementations.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tiktoken-go/tokenizer"

	"github.com/kaiwa-ai/kaiwa/internal/gateway"
)

// OpenAIConfig configures an OpenAI-compatible adapter. Pointing BaseURL
// at any chat-completions-compatible endpoint (vLLM, DeepSeek, Qwen, GLM
// and similar gateways) and giving the adapter a distinct Name lets one
// implementation cover that whole backend family.
type OpenAIConfig struct {
	// Name is the canonical adapter name. Defaults to "openai".
	Name string

	// APIKey authenticates against the backend.
	APIKey string

	// BaseURL overrides the API endpoint. Empty means api.openai.com.
	BaseURL string

	// DefaultModel is used when a request carries no variant.
	DefaultModel string

	// Timeout bounds each request. Defaults to 60s.
	Timeout time.Duration
}

// OpenAI implements gateway.Adapter against the chat completions API.
type OpenAI struct {
	name         string
	client       *openai.Client
	defaultModel string
	codec        tokenizer.Codec
}

var _ gateway.Adapter = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI-compatible adapter.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("openai: load tokenizer: %w", err)
	}

	return &OpenAI{
		name:         cfg.Name,
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		codec:        codec,
	}, nil
}

// Name returns the canonical adapter name.
func (a *OpenAI) Name() string { return a.name }

// Generate sends a chat completion request.
func (a *OpenAI) Generate(ctx context.Context, prompt string, opts *gateway.GenerateOptions) (*gateway.CompletionResult, error) {
	if opts == nil {
		opts = &gateway.GenerateOptions{}
	}
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, a.wrapError(err, model)
	}
	if len(resp.Choices) == 0 {
		return nil, gateway.NewAdapterError(a.name, model, errors.New("empty choices in response"))
	}

	choice := resp.Choices[0]
	result := &gateway.CompletionResult{
		Text: choice.Message.Content,
		Usage: gateway.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
	if details := resp.Usage.CompletionTokensDetails; details != nil && details.ReasoningTokens > 0 {
		result.Usage.Extra = map[string]any{
			"reasoning": map[string]any{
				"output_tokens": details.ReasoningTokens,
			},
		}
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, gateway.ToolCall{
			ID:    tc.Function.Name,
			Input: decodeArguments(tc.Function.Arguments),
		})
	}
	return result, nil
}

// CountTokens counts tokens locally with the cl100k_base vocabulary.
func (a *OpenAI) CountTokens(_ context.Context, text string) (int, error) {
	ids, _, err := a.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("%s: encode: %w", a.name, err)
	}
	return len(ids), nil
}

func (a *OpenAI) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return gateway.NewAdapterError(a.name, model, err).WithStatus(apiErr.HTTPStatusCode)
	}
	return gateway.NewAdapterError(a.name, model, err)
}
