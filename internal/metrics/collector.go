// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/groupkit-ai/groupkit/types"
)

const namespace = "groupkit"

// Collector records orchestration metrics.
type Collector struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	turnsTotal      *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	dispatchRetries prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a collector registered against reg.
func NewCollector(reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of group runs",
		},
		[]string{"status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Group run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of participant turns",
		},
		[]string{"speaker"},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens consumed",
		},
		[]string{"type"}, // type: prompt, completion
	)

	c.dispatchRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_retries_total",
			Help:      "Total number of turn dispatch retries",
		},
	)

	c.logger.Debug("metrics collector initialized")
	return c
}

// RecordRun records a finished run with its terminal status.
func (c *Collector) RecordRun(status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordTurn records one participant turn.
func (c *Collector) RecordTurn(speaker string) {
	c.turnsTotal.WithLabelValues(speaker).Inc()
}

// AddTokens adds a run's token usage to the totals.
func (c *Collector) AddTokens(usage types.TokenUsage) {
	c.tokensUsed.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	c.tokensUsed.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
}

// RecordDispatchRetry records one dispatch retry attempt.
func (c *Collector) RecordDispatchRetry() {
	c.dispatchRetries.Inc()
}
