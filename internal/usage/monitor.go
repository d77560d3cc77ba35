package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kaiwa-ai/kaiwa/internal/store"
)

// Record is one request's usage as captured by the monitor.
type Record struct {
	RequestID  string        `json:"request_id"`
	SessionID  string        `json:"session_id"`
	Model      string        `json:"model"`
	Usage      Usage         `json:"usage"`
	CostUSD    float64       `json:"cost_usd"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Monitor prices each request, persists a usage row, and keeps running
// in-memory totals. An optional JSONL audit file mirrors every record.
type Monitor struct {
	pricing   Pricing
	store     store.Store
	auditPath string
	totals    *totals
	logger    *slog.Logger
}

// NewMonitor creates a monitor. auditPath may be empty to disable the
// audit log.
func NewMonitor(pricing Pricing, st store.Store, auditPath string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		pricing:   pricing,
		store:     st,
		auditPath: auditPath,
		totals:    newTotals(),
		logger:    logger,
	}
}

// Track prices the usage and records it everywhere at once. The store
// insert is the source of truth; the audit append failing only logs.
func (m *Monitor) Track(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.DurationMS = rec.Duration.Milliseconds()

	cost := m.pricing[rec.Model]
	rec.CostUSD = cost.Estimate(&rec.Usage)

	_, err := m.store.AddUsage(ctx, store.UsageRow{
		RequestID:  rec.RequestID,
		SessionID:  rec.SessionID,
		Model:      rec.Model,
		TokensIn:   rec.Usage.InputTokens,
		TokensOut:  rec.Usage.OutputTokens,
		CostUSD:    rec.CostUSD,
		DurationMS: rec.DurationMS,
		CreatedAt:  rec.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	m.totals.add(rec.Model, rec.Usage, rec.CostUSD)

	if m.auditPath != "" {
		if err := m.appendAudit(rec); err != nil {
			m.logger.Warn("usage audit append failed",
				slog.String("path", m.auditPath),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Accumulate prices the usage and folds it into the in-memory totals
// only. Turns that must leave no durable trace still count toward the
// session totals this way.
func (m *Monitor) Accumulate(rec Record) {
	cost := m.pricing[rec.Model]
	m.totals.add(rec.Model, rec.Usage, cost.Estimate(&rec.Usage))
}

// Price returns the configured cost table entry for a model. Unknown
// models price at zero.
func (m *Monitor) Price(model string) Cost {
	return m.pricing[model]
}

// Totals returns per-model token usage and accumulated cost since start.
func (m *Monitor) Totals() (map[string]Usage, map[string]float64) {
	return m.totals.snapshot()
}

func (m *Monitor) appendAudit(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(m.auditPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(m.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}
