// Package metrics holds the Prometheus collectors shared by the tutor components.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the tutor collectors.
type Metrics struct {
	CacheLookups *prometheus.CounterVec
	CacheWrites  *prometheus.CounterVec
	Sessions     *prometheus.CounterVec
	Tokens       prometheus.Counter
	Rejections   prometheus.Counter
	FirstToken   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Answer cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Answer cache writes by result (ok, error).",
		}, []string{"result"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "stream",
			Name:      "sessions_total",
			Help:      "Finished sessions by kind and terminal state.",
		}, []string{"kind", "state"}),
		Tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "stream",
			Name:      "tokens_total",
			Help:      "Text deltas received from the upstream endpoint.",
		}),
		Rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "syllabus",
			Name:      "rejections_total",
			Help:      "Questions rejected as out of syllabus.",
		}),
		FirstToken: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutor",
			Subsystem: "stream",
			Name:      "first_token_seconds",
			Help:      "Time from request to first upstream token.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheLookups, m.CacheWrites, m.Sessions, m.Tokens, m.Rejections, m.FirstToken)
	}
	return m
}

// CacheLookup counts a lookup result.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// CacheWrite counts a write result.
func (m *Metrics) CacheWrite(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.CacheWrites.WithLabelValues(result).Inc()
}

// SessionFinished counts a terminal session.
func (m *Metrics) SessionFinished(kind, state string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(kind, state).Inc()
}

// Token counts one upstream delta.
func (m *Metrics) Token() {
	if m == nil {
		return
	}
	m.Tokens.Inc()
}

// Rejected counts an out-of-syllabus question.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.Rejections.Inc()
}

// ObserveFirstToken records time-to-first-token in seconds.
func (m *Metrics) ObserveFirstToken(seconds float64) {
	if m == nil {
		return
	}
	m.FirstToken.Observe(seconds)
}
