package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"deadline", context.DeadlineExceeded, ReasonTimeout},
		{"net timeout", timeoutErr{}, ReasonTimeout},
		{"wrapped net timeout", fmt.Errorf("call: %w", timeoutErr{}), ReasonTimeout},
		{"conn refused", syscall.ECONNREFUSED, ReasonConnection},
		{"conn reset", syscall.ECONNRESET, ReasonConnection},
		{"rate limit text", errors.New("429 too many requests"), ReasonRateLimit},
		{"auth text", errors.New("401 unauthorized"), ReasonAuth},
		{"unknown", errors.New("something odd"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Reason
	}{
		{408, ReasonTimeout},
		{429, ReasonRateLimit},
		{401, ReasonAuth},
		{403, ReasonAuth},
		{400, ReasonInvalid},
		{404, ReasonInvalid},
		{422, ReasonInvalid},
		{500, ReasonServer},
		{503, ReasonServer},
		{200, ReasonUnknown},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	transient := []error{
		&AdapterError{Reason: ReasonTimeout},
		&AdapterError{Reason: ReasonConnection},
		&AdapterError{Reason: ReasonRateLimit},
		&AdapterError{Reason: ReasonServer},
		context.DeadlineExceeded,
		syscall.ECONNREFUSED,
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Errorf("expected %v to be transient", err)
		}
	}

	fatal := []error{
		nil,
		&AdapterError{Reason: ReasonAuth},
		&AdapterError{Reason: ReasonInvalid},
		&AdapterError{Reason: ReasonUnknown},
		errors.New("parse failure"),
	}
	for _, err := range fatal {
		if IsTransient(err) {
			t.Errorf("expected %v to be non-transient", err)
		}
	}
}

func TestAdapterError_WithStatus(t *testing.T) {
	err := NewAdapterError("openai", "gpt-4o", errors.New("boom")).WithStatus(429)
	if err.Reason != ReasonRateLimit {
		t.Errorf("expected status reclassification to rate_limit, got %v", err.Reason)
	}
	if err.Status != 429 {
		t.Errorf("expected status recorded, got %d", err.Status)
	}
}

func TestAdapterError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := NewAdapterError("ollama", "llama3", fmt.Errorf("wrap: %w", cause))
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the root cause")
	}
}

func TestAdapterError_ErrorString(t *testing.T) {
	err := &AdapterError{
		Provider: "claude",
		Model:    "claude-sonnet-4",
		Status:   500,
		Reason:   ReasonServer,
		Cause:    errors.New("overloaded"),
	}
	got := err.Error()
	for _, want := range []string{"[server_error]", "claude", "model=claude-sonnet-4", "status=500", "overloaded"} {
		if !strings.Contains(got, want) {
			t.Errorf("error string %q missing %q", got, want)
		}
	}
}

// Retry timing sanity: the policy bounds worst-case latency.
func TestRetryPolicyBounds(t *testing.T) {
	g := New(nil)
	if g.retry.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", g.retry.MaxAttempts)
	}
	if g.retry.InitialDelay != time.Second || g.retry.MaxDelay != 8*time.Second {
		t.Errorf("expected 1s..8s backoff window, got %v..%v", g.retry.InitialDelay, g.retry.MaxDelay)
	}
}
