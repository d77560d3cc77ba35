package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.TurnCounter.WithLabelValues("success").Inc()
	metrics.TurnCounter.WithLabelValues("success").Inc()
	metrics.TurnCounter.WithLabelValues("error").Inc()
	metrics.ModelTokens.WithLabelValues("gpt-4o-mini", "input").Add(120)

	if got := testutil.ToFloat64(metrics.TurnCounter.WithLabelValues("success")); got != 2 {
		t.Errorf("success turns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.TurnCounter.WithLabelValues("error")); got != 1 {
		t.Errorf("error turns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ModelTokens.WithLabelValues("gpt-4o-mini", "input")); got != 120 {
		t.Errorf("input tokens = %v, want 120", got)
	}
}

func TestNewLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	logger.Debug("turn started", "session_id", "sess-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "turn started" {
		t.Errorf("msg = %v, want turn started", record["msg"])
	}
	if record["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", record["session_id"])
	}
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Info("should be dropped")
	logger.Warn("should be kept")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info record logged at warn level")
	}
	if !strings.Contains(out, "should be kept") {
		t.Error("warn record missing")
	}
}
