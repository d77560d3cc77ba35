package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnknownTool is returned when no entry matches the tool name.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrUnknownKind is returned for an entry with an unhandled kind.
	ErrUnknownKind = errors.New("tools: unknown tool kind")
)

// ExecutionError wraps a failure inside a known tool. Callers that want
// to degrade per-tool (instead of failing the whole turn) match on this
// type; registry misses stay plain errors and propagate.
type ExecutionError struct {
	Tool  string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Runner invokes registered tools.
type Runner struct {
	registry *Registry
	client   *http.Client
	logger   *slog.Logger
}

// NewRunner creates a runner over the registry.
func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type remoteRequest struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

type remoteResponse struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// Invoke executes the named tool with the given input and returns its
// textual output.
func (r *Runner) Invoke(ctx context.Context, name string, input map[string]any) (string, error) {
	entry, ok := r.registry.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	start := time.Now()
	var output string
	var err error
	switch entry.Kind {
	case KindLocal:
		output, err = r.invokeLocal(ctx, entry, input)
	case KindRemote:
		output, err = r.invokeRemote(ctx, entry, input)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, entry.Kind)
	}

	if err != nil {
		r.logger.Warn("tool invocation failed",
			slog.String("tool", name),
			slog.String("error", err.Error()))
		return "", err
	}
	r.logger.Debug("tool invoked",
		slog.String("tool", name),
		slog.Duration("duration", time.Since(start)))
	return output, nil
}

func (r *Runner) invokeLocal(ctx context.Context, entry Entry, input map[string]any) (string, error) {
	output, err := entry.Local(ctx, input)
	if err != nil {
		return "", &ExecutionError{Tool: entry.Name, Cause: err}
	}
	return output, nil
}

func (r *Runner) invokeRemote(ctx context.Context, entry Entry, input map[string]any) (string, error) {
	body, err := json.Marshal(remoteRequest{Tool: entry.Name, Input: input})
	if err != nil {
		return "", &ExecutionError{Tool: entry.Name, Cause: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.Server.URL, bytes.NewReader(body))
	if err != nil {
		return "", &ExecutionError{Tool: entry.Name, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if entry.Server.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+entry.Server.Token)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", &ExecutionError{Tool: entry.Name, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ExecutionError{Tool: entry.Name, Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ExecutionError{
			Tool:  entry.Name,
			Cause: fmt.Errorf("server status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	// Any 2xx body is the tool result verbatim. An {output, error}
	// envelope is recognized when present: an error field fails the
	// call, an output field unwraps to just the output text.
	var remote remoteResponse
	if err := json.Unmarshal(respBody, &remote); err == nil {
		if remote.Error != "" {
			return "", &ExecutionError{Tool: entry.Name, Cause: errors.New(remote.Error)}
		}
		if remote.Output != "" {
			return remote.Output, nil
		}
	}
	return string(respBody), nil
}
