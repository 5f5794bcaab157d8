package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RankingMetrics is what the ranking services record.
type RankingMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)

	RecordTierEvaluated(ctx context.Context, tier string, promoted, maintained, demoted int)
	RecordTierSkipped(ctx context.Context, tier string)
	RecordTransientRetry(ctx context.Context, operation string)
	RecordRewardsGranted(ctx context.Context, tier, rewardType string, count int)
	RecordWeekTransition(ctx context.Context, from, to string)
	RecordEventPublished(ctx context.Context, topic string, ok bool)
}

// PrometheusMetrics implements RankingMetrics.
type PrometheusMetrics struct {
	attempts    *prometheus.CounterVec
	successes   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	outcomes    *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	retries     *prometheus.CounterVec
	rewards     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	published   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the ranking collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "operation_attempts_total",
			Help: "Service operations started.",
		}, []string{"operation", "service"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "operation_success_total",
			Help: "Service operations that succeeded.",
		}, []string{"operation", "service"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "operation_failure_total",
			Help: "Service operations that failed.",
		}, []string{"operation", "service"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ranking", Name: "operation_duration_seconds",
			Help:    "Service operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"operation", "service"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "member_outcomes_total",
			Help: "Weekly outcomes per tier and status.",
		}, []string{"tier", "status"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "tier_skipped_total",
			Help: "Tiers skipped because their snapshot set was already complete.",
		}, []string{"tier"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "transient_retries_total",
			Help: "Transaction retries after transient storage errors.",
		}, []string{"operation"}),
		rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "rewards_granted_total",
			Help: "Reward grants written.",
		}, []string{"tier", "reward_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "week_transitions_total",
			Help: "Week lifecycle transitions.",
		}, []string{"from", "to"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranking", Name: "events_published_total",
			Help: "Domain events handed to the broker.",
		}, []string{"topic", "result"}),
	}

	reg.MustRegister(m.attempts, m.successes, m.failures, m.durations, m.outcomes,
		m.skipped, m.retries, m.rewards, m.transitions, m.published)
	return m
}

func (m *PrometheusMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.attempts.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.successes.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.failures.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusMetrics) RecordOperationDuration(_ context.Context, operation, service string, duration time.Duration) {
	m.durations.WithLabelValues(operation, service).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordTierEvaluated(_ context.Context, tier string, promoted, maintained, demoted int) {
	m.outcomes.WithLabelValues(tier, "PROMOTED").Add(float64(promoted))
	m.outcomes.WithLabelValues(tier, "MAINTAINED").Add(float64(maintained))
	m.outcomes.WithLabelValues(tier, "DEMOTED").Add(float64(demoted))
}

func (m *PrometheusMetrics) RecordTierSkipped(_ context.Context, tier string) {
	m.skipped.WithLabelValues(tier).Inc()
}

func (m *PrometheusMetrics) RecordTransientRetry(_ context.Context, operation string) {
	m.retries.WithLabelValues(operation).Inc()
}

func (m *PrometheusMetrics) RecordRewardsGranted(_ context.Context, tier, rewardType string, count int) {
	m.rewards.WithLabelValues(tier, rewardType).Add(float64(count))
}

func (m *PrometheusMetrics) RecordWeekTransition(_ context.Context, from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *PrometheusMetrics) RecordEventPublished(_ context.Context, topic string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Inc()
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string, string)                 {}
func (NoOpMetrics) RecordOperationSuccess(context.Context, string, string)                 {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string, string)                 {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (NoOpMetrics) RecordTierEvaluated(context.Context, string, int, int, int)             {}
func (NoOpMetrics) RecordTierSkipped(context.Context, string)                              {}
func (NoOpMetrics) RecordTransientRetry(context.Context, string)                           {}
func (NoOpMetrics) RecordRewardsGranted(context.Context, string, string, int)              {}
func (NoOpMetrics) RecordWeekTransition(context.Context, string, string)                   {}
func (NoOpMetrics) RecordEventPublished(context.Context, string, bool)                     {}

var (
	_ RankingMetrics = (*PrometheusMetrics)(nil)
	_ RankingMetrics = NoOpMetrics{}
)
