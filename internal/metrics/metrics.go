// Package metrics exposes Prometheus instrumentation for crawl runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the crawl instrumentation set. A nil *Metrics is valid
// and records nothing, so callers never branch on enablement.
type Metrics struct {
	attempts      *prometheus.CounterVec
	fallbackDepth prometheus.Histogram
	gateRejects   *prometheus.CounterVec
	attemptTime   *prometheus.HistogramVec
	articlesFound *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
}

// New creates and registers the metric set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crawler",
			Name:      "attempts_total",
			Help:      "Technique attempts by technique and outcome.",
		}, []string{"technique", "outcome"}),
		fallbackDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crawler",
			Name:      "fallback_depth",
			Help:      "How many techniques a run tried before finishing.",
			Buckets:   []float64{1, 2, 3, 4},
		}),
		gateRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crawler",
			Name:      "quality_rejections_total",
			Help:      "Quality gate rejections by reason.",
		}, []string{"reason"}),
		attemptTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crawler",
			Name:      "attempt_duration_seconds",
			Help:      "Attempt duration by technique.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"technique"}),
		articlesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crawler",
			Name:      "articles_found_total",
			Help:      "Usable articles harvested by technique.",
		}, []string{"technique"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crawler",
			Name:      "resolutions_total",
			Help:      "Resolver decisions by technique and detection method.",
		}, []string{"technique", "method"}),
	}

	reg.MustRegister(m.attempts, m.fallbackDepth, m.gateRejects, m.attemptTime, m.articlesFound, m.resolutions)

	return m
}

// ObserveAttempt records one technique attempt.
func (m *Metrics) ObserveAttempt(technique, outcome string, seconds float64) {
	if m == nil {
		return
	}

	m.attempts.WithLabelValues(technique, outcome).Inc()
	m.attemptTime.WithLabelValues(technique).Observe(seconds)
}

// ObserveRun records the fallback depth of one finished run.
func (m *Metrics) ObserveRun(attempts int) {
	if m == nil {
		return
	}

	m.fallbackDepth.Observe(float64(attempts))
}

// ObserveGateRejection records one quality-gate rejection.
func (m *Metrics) ObserveGateRejection(reason string) {
	if m == nil {
		return
	}

	m.gateRejects.WithLabelValues(reason).Inc()
}

// ObserveResolution records one resolver decision.
func (m *Metrics) ObserveResolution(technique, method string) {
	if m == nil {
		return
	}

	m.resolutions.WithLabelValues(technique, method).Inc()
}

// ObserveArticles records harvested article volume.
func (m *Metrics) ObserveArticles(technique string, count int) {
	if m == nil || count == 0 {
		return
	}

	m.articlesFound.WithLabelValues(technique).Add(float64(count))
}
