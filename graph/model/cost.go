package model

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Pricing is the USD price per million tokens for one model.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultPricing returns list prices for the models the adapters default to.
// Unknown models are tracked at zero cost.
func defaultPricing() map[string]Pricing {
	return map[string]Pricing{
		"claude-sonnet-4-5": {InputPer1M: 3.00, OutputPer1M: 15.00},
		"claude-haiku-4-5":  {InputPer1M: 1.00, OutputPer1M: 5.00},
		"claude-opus-4-1":   {InputPer1M: 15.00, OutputPer1M: 75.00},
		"gpt-4o":            {InputPer1M: 2.50, OutputPer1M: 10.00},
		"gpt-4o-mini":       {InputPer1M: 0.15, OutputPer1M: 0.60},
		"gpt-4.1":           {InputPer1M: 2.00, OutputPer1M: 8.00},
		"gpt-4.1-mini":      {InputPer1M: 0.40, OutputPer1M: 1.60},
		"gemini-2.5-pro":    {InputPer1M: 1.25, OutputPer1M: 10.00},
		"gemini-2.5-flash":  {InputPer1M: 0.30, OutputPer1M: 2.50},
	}
}

// CallCost records the usage and cost of one chat call.
type CallCost struct {
	Model     string
	Usage     Usage
	CostUSD   float64
	Timestamp time.Time
}

// CostTracker accumulates token usage and cost across chat calls.
// It is safe for concurrent use.
type CostTracker struct {
	mu      sync.Mutex
	pricing map[string]Pricing
	calls   []CallCost
}

// NewCostTracker returns a tracker using the built-in price list.
func NewCostTracker() *CostTracker {
	return &CostTracker{pricing: defaultPricing()}
}

// SetPricing overrides the price of model.
func (t *CostTracker) SetPricing(model string, p Pricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing[model] = p
}

// Record adds one call's usage and returns its cost.
func (t *CostTracker) Record(model string, u Usage) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.pricing[model]
	cost := float64(u.InputTokens)/1_000_000*p.InputPer1M + float64(u.OutputTokens)/1_000_000*p.OutputPer1M
	t.calls = append(t.calls, CallCost{Model: model, Usage: u, CostUSD: cost, Timestamp: time.Now()})
	return cost
}

// Calls returns a copy of the recorded calls in order.
func (t *CostTracker) Calls() []CallCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CallCost, len(t.calls))
	copy(out, t.calls)
	return out
}

// Total returns the summed usage and cost of all recorded calls.
func (t *CostTracker) Total() (Usage, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var u Usage
	var cost float64
	for _, c := range t.calls {
		u.InputTokens += c.Usage.InputTokens
		u.OutputTokens += c.Usage.OutputTokens
		cost += c.CostUSD
	}
	return u, cost
}

// ByModel returns the cost per model, sorted by model name.
func (t *CostTracker) ByModel() []CallCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	index := map[string]int{}
	var out []CallCost
	for _, c := range t.calls {
		i, ok := index[c.Model]
		if !ok {
			i = len(out)
			index[c.Model] = i
			out = append(out, CallCost{Model: c.Model})
		}
		out[i].Usage.InputTokens += c.Usage.InputTokens
		out[i].Usage.OutputTokens += c.Usage.OutputTokens
		out[i].CostUSD += c.CostUSD
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Reset discards all recorded calls.
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// Metered wraps m so every successful call is recorded in t under name.
// A nil tracker returns m unchanged.
func Metered(m ChatModel, name string, t *CostTracker) ChatModel {
	if t == nil {
		return m
	}
	return ChatFunc(func(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
		out, err := m.Chat(ctx, messages, tools)
		if err == nil {
			t.Record(name, out.Usage)
		}
		return out, err
	})
}
