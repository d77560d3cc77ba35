// Package usage provides token usage tracking, cost estimation, and
// per-request usage recording.
package usage

import "sync"

// Usage represents token usage for a single request.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns the total token count.
func (u *Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add adds another usage record to this one.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Cost represents pricing for a model in dollars per million tokens.
type Cost struct {
	Input  float64 `json:"input" yaml:"input"`
	Output float64 `json:"output" yaml:"output"`
}

// Estimate calculates the estimated cost for the given usage.
func (c *Cost) Estimate(usage *Usage) float64 {
	if usage == nil {
		return 0
	}
	total := float64(usage.InputTokens)*c.Input + float64(usage.OutputTokens)*c.Output
	return total / 1_000_000
}

// Pricing maps model names to their costs. A miss means the model is
// free to bill at zero; recording still happens so volume is tracked.
type Pricing map[string]Cost

// totals accumulates per-model usage in memory.
type totals struct {
	mu      sync.RWMutex
	byModel map[string]*Usage
	costs   map[string]float64
}

func newTotals() *totals {
	return &totals{
		byModel: make(map[string]*Usage),
		costs:   make(map[string]float64),
	}
}

func (t *totals) add(model string, u Usage, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byModel[model] == nil {
		t.byModel[model] = &Usage{}
	}
	t.byModel[model].Add(&u)
	t.costs[model] += cost
}

func (t *totals) snapshot() (map[string]Usage, map[string]float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	usageOut := make(map[string]Usage, len(t.byModel))
	for model, u := range t.byModel {
		usageOut[model] = *u
	}
	costOut := make(map[string]float64, len(t.costs))
	for model, c := range t.costs {
		costOut[model] = c
	}
	return usageOut, costOut
}
