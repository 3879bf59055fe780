// Package metrics exposes Prometheus collectors for the engine.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional *Metrics without guarding every call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pushengine"

type Metrics struct {
	admissions  *prometheus.CounterVec
	displays    *prometheus.CounterVec
	clicks      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	retries     prometheus.Gauge
	records     *prometheus.GaugeVec
	messages    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobSuccess  *prometheus.CounterVec
	jobFailure  *prometheus.CounterVec
}

// New registers the engine collectors on reg. A nil reg returns a Metrics
// whose methods are no-ops.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Dedup store decisions for incoming notifications.",
		}, []string{"decision"}),
		displays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "displays_total",
			Help:      "Platform display calls by result.",
		}, []string{"result"}),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_total",
			Help:      "Notification clicks by routing outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"to"}),
		retries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_retry_count",
			Help:      "Consecutive transport failures in the current session.",
		}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records held by the dedup store, by state.",
		}, []string{"state"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_messages_total",
			Help:      "Raw messages delivered by the transport.",
		}, []string{"transport"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of maintenance jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		jobSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_success_total",
			Help:      "Successful maintenance job runs.",
		}, []string{"job"}),
		jobFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failure_total",
			Help:      "Failed maintenance job runs.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.admissions, m.displays, m.clicks, m.transitions, m.retries,
		m.records, m.messages, m.jobDuration, m.jobSuccess, m.jobFailure)
	return m
}

func (m *Metrics) ObserveDecision(decision string) {
	if m == nil || m.admissions == nil {
		return
	}
	m.admissions.WithLabelValues(normalizeLabel(decision)).Inc()
}

// ObserveDisplay counts a display attempt; ok=false counts a failure.
func (m *Metrics) ObserveDisplay(ok bool) {
	if m == nil || m.displays == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.displays.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveClick(outcome string) {
	if m == nil || m.clicks == nil {
		return
	}
	m.clicks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveTransition(to string, retryCount int) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
	m.retries.Set(float64(retryCount))
}

func (m *Metrics) ObserveMessage(transport string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(transport)).Inc()
}

// SetRecords replaces the per-state record gauge. States missing from counts
// are reset to zero.
func (m *Metrics) SetRecords(counts map[string]int) {
	if m == nil || m.records == nil {
		return
	}
	m.records.Reset()
	for state, n := range counts {
		m.records.WithLabelValues(normalizeLabel(state)).Set(float64(n))
	}
}

// ObserveJob records one run of a maintenance job.
func (m *Metrics) ObserveJob(job string, took time.Duration, err error) {
	if m == nil || m.jobDuration == nil {
		return
	}
	job = normalizeLabel(job)
	m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.jobFailure.WithLabelValues(job).Inc()
		return
	}
	m.jobSuccess.WithLabelValues(job).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
