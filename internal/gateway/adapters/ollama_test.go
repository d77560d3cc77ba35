package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kaiwa-ai/kaiwa/internal/gateway"
)

func TestOllamaGenerate(t *testing.T) {
	var captured ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := ollamaChatResponse{
			Message:         &ollamaChatMessage{Role: "assistant", Content: "hello there"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       7,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewOllama(OllamaConfig{BaseURL: srv.URL, DefaultModel: "llama3.1"})
	res, err := a.Generate(context.Background(), "hi", &gateway.GenerateOptions{System: "sys", MaxTokens: 64})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if res.Text != "hello there" {
		t.Errorf("text = %q, want %q", res.Text, "hello there")
	}
	if res.Usage.InputTokens != 12 || res.Usage.OutputTokens != 7 {
		t.Errorf("usage = %+v, want 12 in / 7 out", res.Usage)
	}
	if captured.Stream {
		t.Error("request should not ask for a streamed response")
	}
	if captured.Model != "llama3.1" {
		t.Errorf("model = %q, want llama3.1", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v, want system then user", captured.Messages)
	}
	if got, want := captured.Options["num_predict"], float64(64); got != want {
		t.Errorf("num_predict = %v, want %v", got, want)
	}
}

func TestOllamaGenerateToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ollamaChatResponse{
			Message: &ollamaChatMessage{
				Role: "assistant",
				ToolCalls: []ollamaToolCall{
					{Function: ollamaToolFunction{Name: "avatar_action", Arguments: json.RawMessage(`{"action":"wave"}`)}},
				},
			},
			Done: true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewOllama(OllamaConfig{BaseURL: srv.URL})
	res, err := a.Generate(context.Background(), "wave at me", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(res.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(res.ToolCalls))
	}
	if res.ToolCalls[0].ID != "avatar_action" {
		t.Errorf("tool id = %q, want avatar_action", res.ToolCalls[0].ID)
	}
	if got := res.ToolCalls[0].Input["action"]; got != "wave" {
		t.Errorf("tool input action = %v, want wave", got)
	}
}

func TestOllamaGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewOllama(OllamaConfig{BaseURL: srv.URL})
	_, err := a.Generate(context.Background(), "hi", &gateway.GenerateOptions{Model: "missing"})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	var adapterErr *gateway.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("error type = %T, want *gateway.AdapterError", err)
	}
	if adapterErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", adapterErr.Status)
	}
	if gateway.IsTransient(err) {
		t.Error("404 should not be transient")
	}
}

func TestOllamaGenerateBodyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResponse{Error: "out of memory"})
	}))
	defer srv.Close()

	a := NewOllama(OllamaConfig{BaseURL: srv.URL})
	_, err := a.Generate(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected error from error payload")
	}
}

func TestDecodeArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		key  string
		want any
	}{
		{"object", `{"q":"test"}`, "q", "test"},
		{"empty", "", "", nil},
		{"invalid json preserved", `not json`, "raw", "not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeArguments(tt.raw)
			if tt.key == "" {
				if len(got) != 0 {
					t.Errorf("decodeArguments(%q) = %v, want empty map", tt.raw, got)
				}
				return
			}
			if got[tt.key] != tt.want {
				t.Errorf("decodeArguments(%q)[%q] = %v, want %v", tt.raw, tt.key, got[tt.key], tt.want)
			}
		})
	}
}
