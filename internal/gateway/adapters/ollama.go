package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kaiwa-ai/kaiwa/internal/gateway"
)

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// Ollama implements gateway.Adapter against a local Ollama server.
type Ollama struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

var _ gateway.Adapter = (*Ollama)(nil)

// NewOllama creates an Ollama adapter.
func NewOllama(cfg OllamaConfig) *Ollama {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	defaultModel := strings.TrimSpace(cfg.DefaultModel)
	if defaultModel == "" {
		defaultModel = "llama3.1"
	}
	return &Ollama{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: defaultModel,
	}
}

// Name returns the canonical adapter name.
func (a *Ollama) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type ollamaToolCall struct {
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Generate sends a non-streaming chat request to /api/chat.
func (a *Ollama) Generate(ctx context.Context, prompt string, opts *gateway.GenerateOptions) (*gateway.CompletionResult, error) {
	if opts == nil {
		opts = &gateway.GenerateOptions{}
	}
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}

	var messages []ollamaChatMessage
	if system := strings.TrimSpace(opts.System); system != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: prompt})

	payload := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if opts.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": opts.MaxTokens}
	}
	if opts.Temperature != nil {
		if payload.Options == nil {
			payload.Options = map[string]any{}
		}
		payload.Options["temperature"] = *opts.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, gateway.NewAdapterError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}

	url := a.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gateway.NewAdapterError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, gateway.NewAdapterError("ollama", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if readErr != nil {
			return nil, gateway.NewAdapterError("ollama", model,
				fmt.Errorf("ollama status %d (read body failed: %w)", resp.StatusCode, readErr)).WithStatus(resp.StatusCode)
		}
		return nil, gateway.NewAdapterError("ollama", model,
			fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, gateway.NewAdapterError("ollama", model, fmt.Errorf("decode response: %w", err))
	}
	if chatResp.Error != "" {
		return nil, gateway.NewAdapterError("ollama", model, errors.New(chatResp.Error))
	}
	if chatResp.Message == nil {
		return nil, gateway.NewAdapterError("ollama", model, errors.New("empty message in response"))
	}

	result := &gateway.CompletionResult{
		Text: chatResp.Message.Content,
		Usage: gateway.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
		},
	}
	for _, tc := range chatResp.Message.ToolCalls {
		name := strings.TrimSpace(tc.Function.Name)
		if name == "" {
			continue
		}
		result.ToolCalls = append(result.ToolCalls, gateway.ToolCall{
			ID:    name,
			Input: decodeArguments(string(tc.Function.Arguments)),
		})
	}
	return result, nil
}

// CountTokens estimates the token count at roughly 4 characters per token.
// Local models vary in vocabulary, so a server round trip per count is not
// worth the latency.
func (a *Ollama) CountTokens(_ context.Context, text string) (int, error) {
	return len(text) / 4, nil
}
