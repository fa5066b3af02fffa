package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Helix core.
type Metrics struct {
	TurnsTotal            *prometheus.CounterVec
	TurnDurationMs        *prometheus.HistogramVec
	TokensTotal           *prometheus.CounterVec
	CostCentsTotal        *prometheus.CounterVec
	BatonStepsTotal       *prometheus.CounterVec
	BatonTerminationTotal *prometheus.CounterVec
	JudgeFallbackTotal    prometheus.Counter
	RetrievalFailureTotal prometheus.Counter
	RateLimitHitTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_turns_total",
			Help: "Total completion turns processed.",
		}, []string{"mode", "engine", "provider", "status"}),

		TurnDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helix_turn_duration_ms",
			Help:    "Turn duration in milliseconds including provider latency.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"mode", "engine"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"engine", "direction"}),

		CostCentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_cost_cents_total",
			Help: "Total cost charged, in cents.",
		}, []string{"engine", "provider"}),

		BatonStepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_baton_steps_total",
			Help: "Baton steps taken, by resulting action.",
		}, []string{"action"}),

		BatonTerminationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_baton_termination_total",
			Help: "Baton chain terminations, by reason.",
		}, []string{"reason"}),

		JudgeFallbackTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "helix_judge_fallback_total",
			Help: "Judge calls that degraded to the neutral fallback score.",
		}),

		RetrievalFailureTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "helix_retrieval_failure_total",
			Help: "Retrieval attempts that failed and were skipped.",
		}),

		RateLimitHitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_rate_limit_hit_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"dimension"}),
	}
}

// TurnLabels holds label values for recording one completed turn.
type TurnLabels struct {
	Mode             string
	Engine           string
	Provider         string
	Status           string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
	CostCents        int64
}

// RecordTurn records metrics for a completed (or failed) turn.
func (m *Metrics) RecordTurn(l TurnLabels) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(l.Mode, l.Engine, l.Provider, l.Status).Inc()
	m.TurnDurationMs.WithLabelValues(l.Mode, l.Engine).Observe(l.DurationMs)
	if l.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Engine, "prompt").Add(float64(l.PromptTokens))
	}
	if l.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(l.Engine, "completion").Add(float64(l.CompletionTokens))
	}
	if l.CostCents > 0 {
		m.CostCentsTotal.WithLabelValues(l.Engine, l.Provider).Add(float64(l.CostCents))
	}
}

func (m *Metrics) RecordBatonStep(action string) {
	if m == nil {
		return
	}
	m.BatonStepsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordBatonTermination(reason string) {
	if m == nil {
		return
	}
	m.BatonTerminationTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordJudgeFallback() {
	if m == nil {
		return
	}
	m.JudgeFallbackTotal.Inc()
}

func (m *Metrics) RecordRetrievalFailure() {
	if m == nil {
		return
	}
	m.RetrievalFailureTotal.Inc()
}

func (m *Metrics) RecordRateLimitHit(dimension string) {
	if m == nil {
		return
	}
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}
