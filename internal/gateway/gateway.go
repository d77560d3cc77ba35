// Package gateway routes generation requests to model backend adapters.
//
// A Gateway holds a registry of adapters keyed by canonical name plus a
// set of string aliases. Requested model identifiers may be namespaced
// ("provider:variant"); resolution tries the exact name, then the alias
// table, then the namespace prefix. Generation calls run inside a bounded
// retry loop that only retries transient failures.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaiwa-ai/kaiwa/internal/retry"
)

// Separator splits a namespaced model identifier into provider and variant.
const Separator = ":"

var (
	// ErrUnknownAdapter is returned when a model name resolves to no
	// registered adapter. This is a configuration error, never retried.
	ErrUnknownAdapter = errors.New("unknown model adapter")

	// ErrDuplicateRegistration is returned when a canonical name or alias
	// is registered twice.
	ErrDuplicateRegistration = errors.New("adapter already registered")
)

// Usage describes token consumption for one completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	// Extra carries provider-specific fields, possibly nested (e.g. a
	// sub-usage block for an auxiliary reasoning pass).
	Extra map[string]any `json:"extra,omitempty"`
}

// ToolCall is a tool invocation requested by the model's own output.
type ToolCall struct {
	ID    string         `json:"id"`
	Input map[string]any `json:"input,omitempty"`
}

// CompletionResult is the outcome of one generation call. It is transient;
// callers persist only derived fields.
type CompletionResult struct {
	Text      string     `json:"text"`
	Usage     Usage      `json:"usage"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// GenerateOptions tune a single generation call.
type GenerateOptions struct {
	// Model is the backend-specific model id. When empty, the variant
	// part of the requested name (after the separator) is used, falling
	// back to the adapter's default.
	Model string

	// System is an optional system prompt, passed through to backends
	// that model it separately from the user prompt.
	System string

	// MaxTokens bounds the completion length. Zero means adapter default.
	MaxTokens int

	// Temperature, when non-nil, overrides the backend default.
	Temperature *float32
}

// Adapter is a backend-specific implementation of the generate and
// count-tokens contract. Implementations must be safe for concurrent use.
type Adapter interface {
	// Name returns the canonical adapter name.
	Name() string

	// Generate produces a completion for the prompt.
	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (*CompletionResult, error)

	// CountTokens returns the token count of text for this backend.
	CountTokens(ctx context.Context, text string) (int, error)
}

// Gateway dispatches model requests to registered adapters. The registry
// is built once at startup and read-only afterward; Resolve and Generate
// are safe for concurrent use once registration is complete.
type Gateway struct {
	adapters map[string]Adapter
	aliases  map[string]string
	retry    retry.Config
	logger   *slog.Logger
}

// New creates an empty gateway with the default retry policy: 3 attempts,
// exponential backoff between 1s and 8s, transient failures only.
func New(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		adapters: make(map[string]Adapter),
		aliases:  make(map[string]string),
		retry:    retry.Exponential(3, time.Second, 8*time.Second),
		logger:   logger.With("component", "gateway"),
	}
}

// SetRetryConfig overrides the retry policy. Call before serving traffic.
func (g *Gateway) SetRetryConfig(cfg retry.Config) {
	g.retry = cfg
}

// Register stores the adapter under its canonical name and every alias.
// Canonical names and aliases share one namespace; registering a name or
// alias twice is an error rather than a silent overwrite.
func (g *Gateway) Register(adapter Adapter, aliases ...string) error {
	name := adapter.Name()
	if name == "" {
		return errors.New("adapter name is required")
	}
	if g.taken(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateRegistration, name)
	}
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if g.taken(alias) {
			return fmt.Errorf("%w: alias %q", ErrDuplicateRegistration, alias)
		}
	}

	g.adapters[name] = adapter
	for _, alias := range aliases {
		if alias == "" || alias == name {
			continue
		}
		g.aliases[alias] = name
	}
	return nil
}

func (g *Gateway) taken(name string) bool {
	if _, ok := g.adapters[name]; ok {
		return true
	}
	_, ok := g.aliases[name]
	return ok
}

// Resolve maps a requested model identifier to its adapter. Resolution
// order: exact canonical match, exact alias match, then for namespaced
// names the "prefix:" alias and finally the bare prefix as a canonical
// name. Any other shape fails with ErrUnknownAdapter.
func (g *Gateway) Resolve(name string) (Adapter, error) {
	if adapter, ok := g.adapters[name]; ok {
		return adapter, nil
	}
	if canonical, ok := g.aliases[name]; ok {
		return g.adapters[canonical], nil
	}
	if prefix, _, ok := strings.Cut(name, Separator); ok {
		if canonical, ok := g.aliases[prefix+Separator]; ok {
			return g.adapters[canonical], nil
		}
		if adapter, ok := g.adapters[prefix]; ok {
			return adapter, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAdapter, name)
}

// Generate resolves the adapter for name and runs its generate operation
// inside the retry loop. Transient failures (timeout, connection) are
// retried up to the attempt budget; anything else propagates immediately.
// After exhausted retries the last error propagates.
func (g *Gateway) Generate(ctx context.Context, name, prompt string, opts *GenerateOptions) (*CompletionResult, error) {
	adapter, err := g.Resolve(name)
	if err != nil {
		return nil, err
	}

	callOpts := GenerateOptions{}
	if opts != nil {
		callOpts = *opts
	}
	if callOpts.Model == "" {
		callOpts.Model = Variant(name)
	}

	result, res := retry.DoWithValue(ctx, g.retry, func() (*CompletionResult, error) {
		completion, genErr := adapter.Generate(ctx, prompt, &callOpts)
		if genErr != nil && !IsTransient(genErr) {
			return nil, retry.Permanent(genErr)
		}
		return completion, genErr
	})
	if res.Err != nil {
		g.logger.Warn("generation failed",
			"adapter", adapter.Name(),
			"model", callOpts.Model,
			"attempts", res.Attempts,
			"error", res.Err)
		return nil, retry.Unwrapped(res.Err)
	}
	if res.Attempts > 1 {
		g.logger.Info("generation recovered after retry",
			"adapter", adapter.Name(),
			"model", callOpts.Model,
			"attempts", res.Attempts)
	}
	return result, nil
}

// CountTokens resolves the adapter and delegates. Token counting is
// assumed local or cheap, so there is no retry.
func (g *Gateway) CountTokens(ctx context.Context, name, text string) (int, error) {
	adapter, err := g.Resolve(name)
	if err != nil {
		return 0, err
	}
	return adapter.CountTokens(ctx, text)
}

// Variant returns the part of a namespaced model identifier after the
// separator, or empty when the name carries no namespace.
func Variant(name string) string {
	if _, variant, ok := strings.Cut(name, Separator); ok {
		return variant
	}
	return ""
}

// Provider returns the namespace prefix of a model identifier, or the
// whole name when it carries no namespace.
func Provider(name string) string {
	prefix, _, _ := strings.Cut(name, Separator)
	return prefix
}
