package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordTurn(t *testing.T) {
	m := NewMetrics()

	m.RecordTurn(TurnLabels{
		Mode:             "single",
		Engine:           "gpt-4o-mini",
		Provider:         "openai",
		Status:           "ok",
		DurationMs:       120,
		PromptTokens:     100,
		CompletionTokens: 50,
		CostCents:        3,
	})

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("single", "gpt-4o-mini", "openai", "ok")); got != 1 {
		t.Errorf("turns total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TokensTotal.WithLabelValues("gpt-4o-mini", "prompt")); got != 100 {
		t.Errorf("prompt tokens = %v, want 100", got)
	}
	if got := testutil.ToFloat64(m.CostCentsTotal.WithLabelValues("gpt-4o-mini", "openai")); got != 3 {
		t.Errorf("cost cents = %v, want 3", got)
	}

	m.RecordBatonStep("revised")
	m.RecordBatonTermination("truthiness")
	m.RecordJudgeFallback()
	m.RecordRetrievalFailure()

	if got := testutil.ToFloat64(m.BatonStepsTotal.WithLabelValues("revised")); got != 1 {
		t.Errorf("baton steps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JudgeFallbackTotal); got != 1 {
		t.Errorf("judge fallback = %v, want 1", got)
	}
}

func TestMetrics_NilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.RecordTurn(TurnLabels{})
	m.RecordBatonStep("initial")
	m.RecordBatonTermination("exhausted")
	m.RecordJudgeFallback()
	m.RecordRetrievalFailure()
	m.RecordRateLimitHit("rpm")
}
