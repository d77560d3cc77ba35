package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Reason categorizes why an adapter request failed. It drives the
// gateway's retry decision: only transient reasons are retried.
type Reason string

const (
	// ReasonTimeout indicates the backend did not answer in time.
	ReasonTimeout Reason = "timeout"

	// ReasonConnection indicates the backend could not be reached.
	ReasonConnection Reason = "connection"

	// ReasonRateLimit indicates rate limiting (HTTP 429).
	ReasonRateLimit Reason = "rate_limit"

	// ReasonServer indicates a backend-side failure (HTTP 5xx).
	ReasonServer Reason = "server_error"

	// ReasonAuth indicates an authentication failure (HTTP 401, 403).
	ReasonAuth Reason = "auth"

	// ReasonInvalid indicates a malformed request (HTTP 400, 404, 422).
	ReasonInvalid Reason = "invalid_request"

	// ReasonUnknown indicates an unclassified error.
	ReasonUnknown Reason = "unknown"
)

// Transient reports whether the reason suggests a retry may succeed.
func (r Reason) Transient() bool {
	switch r {
	case ReasonTimeout, ReasonConnection, ReasonRateLimit, ReasonServer:
		return true
	default:
		return false
	}
}

// AdapterError is a structured error from a model backend. It captures the
// context the gateway needs for its retry decision and for logging.
type AdapterError struct {
	// Provider is the adapter name (e.g. "openai", "claude").
	Provider string

	// Model is the model that was requested, if known.
	Model string

	// Status is the HTTP status code, if applicable.
	Status int

	// Reason categorizes the failure.
	Reason Reason

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError wraps cause with provider/model context, classifying the
// failure reason from the cause itself.
func NewAdapterError(provider, model string, cause error) *AdapterError {
	return &AdapterError{
		Provider: provider,
		Model:    model,
		Reason:   classify(cause),
		Cause:    cause,
	}
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *AdapterError) WithStatus(status int) *AdapterError {
	e.Status = status
	if reason := classifyStatus(status); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// classify derives a Reason from a raw transport error.
func classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ReasonConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ReasonConnection
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") || strings.Contains(errStr, "no such host"):
		return ReasonConnection
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "rate_limit") || strings.Contains(errStr, "too many requests"):
		return ReasonRateLimit
	case strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "invalid api key") || strings.Contains(errStr, "authentication"):
		return ReasonAuth
	}
	return ReasonUnknown
}

// classifyStatus maps an HTTP status code to a Reason.
func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusRequestTimeout:
		return ReasonTimeout
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return ReasonInvalid
	case status >= 500:
		return ReasonServer
	default:
		return ReasonUnknown
	}
}

// IsTransient reports whether err is worth retrying. AdapterErrors are
// judged by their recorded reason; raw errors are classified in place.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Reason.Transient()
	}
	return classify(err).Transient()
}
