package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/genai"

	"github.com/kaiwa-ai/kaiwa/internal/gateway"
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// Gemini implements gateway.Adapter for the Gemini API.
type Gemini struct {
	client       *genai.Client
	defaultModel string
}

var _ gateway.Adapter = (*Gemini)(nil)

// NewGemini creates a Gemini adapter.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Gemini{client: client, defaultModel: cfg.DefaultModel}, nil
}

// Name returns the canonical adapter name.
func (a *Gemini) Name() string { return "gemini" }

// Generate sends a generate-content request and flattens the candidate parts.
func (a *Gemini) Generate(ctx context.Context, prompt string, opts *gateway.GenerateOptions) (*gateway.CompletionResult, error) {
	if opts == nil {
		opts = &gateway.GenerateOptions{}
	}
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}

	config := &genai.GenerateContentConfig{}
	if opts.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: opts.System},
			},
		}
	}
	if opts.MaxTokens > 0 {
		maxTokens := min(opts.MaxTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		config.MaxOutputTokens = int32(maxTokens)
	}
	if opts.Temperature != nil {
		config.Temperature = opts.Temperature
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return nil, gateway.NewAdapterError("gemini", model, err)
	}

	result := &gateway.CompletionResult{Text: resp.Text()}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.FunctionCall == nil {
				continue
			}
			argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
			if jsonErr != nil {
				argsJSON = []byte("{}")
			}
			result.ToolCalls = append(result.ToolCalls, gateway.ToolCall{
				ID:    part.FunctionCall.Name,
				Input: decodeArguments(string(argsJSON)),
			})
		}
	}
	if resp.UsageMetadata != nil {
		result.Usage = gateway.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return result, nil
}

// CountTokens estimates the token count at roughly 4 characters per token.
func (a *Gemini) CountTokens(_ context.Context, text string) (int, error) {
	return len(text) / 4, nil
}
