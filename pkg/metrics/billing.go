package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "adtown"

// ReconcileMetrics counts reconciliation outcomes and ingest latency.
type ReconcileMetrics struct {
	outcomes   *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	signatures prometheus.Counter
	conflicts  prometheus.Counter
	duration   *prometheus.HistogramVec
}

// NewReconcileMetrics registers the reconcile metrics on reg. A nil registerer
// yields a no-op recorder.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	m := &ReconcileMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_reconciled_total",
			Help:      "Billing events reconciled, by kind, source and outcome.",
		}, []string{"kind", "source", "outcome"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_duplicate_total",
			Help:      "Billing events dropped as duplicates, by detection layer.",
		}, []string{"layer"}),
		signatures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_webhook_signature_invalid_total",
			Help:      "Webhook deliveries rejected for an invalid signature.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_track_version_conflicts_total",
			Help:      "Compare-and-swap conflicts on billing tracks.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_event_processing_seconds",
			Help:      "Time spent processing one billing event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	reg.MustRegister(m.outcomes, m.duplicates, m.signatures, m.conflicts, m.duration)
	return m
}

// ObserveOutcome records one reconciled event.
func (m *ReconcileMetrics) ObserveOutcome(kind, source, outcome string, took time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(source), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(source)).Observe(took.Seconds())
}

// IncDuplicate records a duplicate caught by the named layer (guard, log).
func (m *ReconcileMetrics) IncDuplicate(layer string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(layer)).Inc()
}

// IncSignatureInvalid records a rejected webhook signature.
func (m *ReconcileMetrics) IncSignatureInvalid() {
	if m == nil || m.signatures == nil {
		return
	}
	m.signatures.Inc()
}

// IncVersionConflict records a lost compare-and-swap.
func (m *ReconcileMetrics) IncVersionConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// OutboundMetrics tracks commands sent to the payment platform.
type OutboundMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewOutboundMetrics registers the outbound command metrics on reg.
func NewOutboundMetrics(reg prometheus.Registerer) *OutboundMetrics {
	if reg == nil {
		return &OutboundMetrics{}
	}
	m := &OutboundMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_outbound_attempts_total",
			Help:      "Outbound platform calls, by intent and result.",
		}, []string{"intent", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_outbound_latency_seconds",
			Help:      "Latency of a single outbound platform call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
	}
	reg.MustRegister(m.attempts, m.latency)
	return m
}

// ObserveAttempt records one outbound call and its result (ok, retry, failed, rejected).
func (m *OutboundMetrics) ObserveAttempt(intent, result string, took time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(intent), normalizeLabel(result)).Inc()
	m.latency.WithLabelValues(normalizeLabel(intent)).Observe(took.Seconds())
}

// OutboxMetrics counts publisher results per event type.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox rows published, by event type.",
		}, []string{"event_type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox publish failures, by event type and reason.",
		}, []string{"event_type", "reason"}),
	}
	reg.MustRegister(m.published, m.failed)
	return m
}

// IncPublished records a published row.
func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed records a failed publish (retry, max_attempts, non_retryable).
func (m *OutboxMetrics) IncFailed(eventType, reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}
