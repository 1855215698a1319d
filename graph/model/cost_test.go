package model

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func TestCostTrackerRecord(t *testing.T) {
	tr := NewCostTracker()

	cost := tr.Record("gpt-4o-mini", Usage{InputTokens: 1_000_000, OutputTokens: 500_000})
	if math.Abs(cost-0.45) > 1e-9 {
		t.Errorf("cost = %v, want 0.45", cost)
	}
	if cost := tr.Record("unknown-model", Usage{InputTokens: 10, OutputTokens: 10}); cost != 0 {
		t.Errorf("unknown model cost = %v, want 0", cost)
	}

	tr.SetPricing("unknown-model", Pricing{InputPer1M: 1, OutputPer1M: 1})
	tr.Record("unknown-model", Usage{InputTokens: 500_000, OutputTokens: 500_000})

	usage, total := tr.Total()
	if usage.InputTokens != 1_500_010 || usage.OutputTokens != 1_000_010 {
		t.Errorf("usage = %+v", usage)
	}
	if math.Abs(total-1.45) > 1e-9 {
		t.Errorf("total = %v, want 1.45", total)
	}

	byModel := tr.ByModel()
	if len(byModel) != 2 || byModel[0].Model != "gpt-4o-mini" || byModel[1].Model != "unknown-model" {
		t.Fatalf("ByModel() = %+v", byModel)
	}
	if math.Abs(byModel[1].CostUSD-1.0) > 1e-9 {
		t.Errorf("unknown-model cost = %v", byModel[1].CostUSD)
	}
	if len(tr.Calls()) != 3 {
		t.Errorf("Calls() = %d", len(tr.Calls()))
	}

	tr.Reset()
	if _, total := tr.Total(); total != 0 || len(tr.Calls()) != 0 {
		t.Error("Reset() left calls behind")
	}
}

func TestMetered(t *testing.T) {
	tr := NewCostTracker()
	mock := &MockChatModel{Responses: []ChatOut{{Text: "ok", Usage: Usage{InputTokens: 100, OutputTokens: 20}}}}
	m := Metered(mock, "claude-sonnet-4-5", tr)

	if _, err := m.Chat(context.Background(), []Message{User("hi")}, nil); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	calls := tr.Calls()
	if len(calls) != 1 || calls[0].Model != "claude-sonnet-4-5" || calls[0].Usage.InputTokens != 100 {
		t.Errorf("Calls() = %+v", calls)
	}

	failing := Metered(&MockChatModel{Err: errors.New("down")}, "x", tr)
	if _, err := failing.Chat(context.Background(), nil, nil); err == nil {
		t.Error("expected error")
	}
	if len(tr.Calls()) != 1 {
		t.Error("failed call was recorded")
	}

	if Metered(mock, "x", nil) != ChatModel(mock) {
		t.Error("nil tracker should return the model unchanged")
	}
}

func TestCostTrackerConcurrent(t *testing.T) {
	tr := NewCostTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("gpt-4o", Usage{InputTokens: 1, OutputTokens: 1})
		}()
	}
	wg.Wait()
	if len(tr.Calls()) != 20 {
		t.Errorf("Calls() = %d, want 20", len(tr.Calls()))
	}
}
