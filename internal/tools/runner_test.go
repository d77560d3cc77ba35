package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func registryWith(entries ...Entry) *Registry {
	r := NewRegistry(nil)
	table := make(map[string]Entry, len(entries))
	for _, e := range entries {
		table[e.Name] = e
	}
	r.entries = table
	return r
}

func TestInvokeLocal(t *testing.T) {
	r := registryWith(Entry{
		Name: "echo",
		Kind: KindLocal,
		Local: func(_ context.Context, input map[string]any) (string, error) {
			s, _ := input["text"].(string)
			return "echo: " + s, nil
		},
	})

	out, err := NewRunner(r, nil).Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "echo: hi" {
		t.Errorf("out = %q", out)
	}
}

func TestInvokeLocalFailureWrapsExecutionError(t *testing.T) {
	cause := errors.New("backend down")
	r := registryWith(Entry{
		Name:  "failing",
		Kind:  KindLocal,
		Local: func(context.Context, map[string]any) (string, error) { return "", cause },
	})

	_, err := NewRunner(r, nil).Invoke(context.Background(), "failing", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.Tool != "failing" || !errors.Is(err, cause) {
		t.Errorf("execErr = %+v", execErr)
	}
}

func TestInvokeRemote(t *testing.T) {
	var gotAuth string
	var gotReq remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(remoteResponse{Output: "sunny, 21C"})
	}))
	defer srv.Close()

	r := registryWith(Entry{
		Name:   "weather",
		Kind:   KindRemote,
		Server: ServerConfig{URL: srv.URL, Token: "secret"},
	})

	out, err := NewRunner(r, nil).Invoke(context.Background(), "weather", map[string]any{"city": "tokyo"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "sunny, 21C" {
		t.Errorf("out = %q", out)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q, want bearer token", gotAuth)
	}
	if gotReq.Tool != "weather" || gotReq.Input["city"] != "tokyo" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestInvokeRemoteNonEnvelopeBodyVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"url": "https://cdn.example.com/a.png"}`))
	}))
	defer srv.Close()

	r := registryWith(Entry{Name: "render", Kind: KindRemote, Server: ServerConfig{URL: srv.URL}})

	out, err := NewRunner(r, nil).Invoke(context.Background(), "render", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != `{"url": "https://cdn.example.com/a.png"}` {
		t.Errorf("out = %q, want the response body verbatim", out)
	}
}

func TestInvokeRemotePlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	}))
	defer srv.Close()

	r := registryWith(Entry{Name: "enqueue", Kind: KindRemote, Server: ServerConfig{URL: srv.URL}})

	out, err := NewRunner(r, nil).Invoke(context.Background(), "enqueue", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "queued" {
		t.Errorf("out = %q, want queued", out)
	}
}

func TestInvokeRemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := registryWith(Entry{Name: "weather", Kind: KindRemote, Server: ServerConfig{URL: srv.URL}})

	_, err := NewRunner(r, nil).Invoke(context.Background(), "weather", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
}

func TestInvokeRemoteErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Error: "city not found"})
	}))
	defer srv.Close()

	r := registryWith(Entry{Name: "weather", Kind: KindRemote, Server: ServerConfig{URL: srv.URL}})

	_, err := NewRunner(r, nil).Invoke(context.Background(), "weather", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.Cause.Error() != "city not found" {
		t.Errorf("cause = %v", execErr.Cause)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	r := registryWith()

	_, err := NewRunner(r, nil).Invoke(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err = %v, want ErrUnknownTool", err)
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		t.Error("unknown tool must not wrap into ExecutionError")
	}
}
