package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report loop activity.
type Metrics struct {
	phaseDuration  *prometheus.HistogramVec
	actionFailures *prometheus.CounterVec
	cacheHits      prometheus.Counter
	requestsActive prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when the orchestrator is instantiated
// multiple times (e.g. in unit tests).
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Supply a fresh registry when unique metric names are required (for example
// in tests). Registration errors panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	phaseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tripnar",
			Subsystem: "orchestrator",
			Name:      "phase_duration_seconds",
			Help:      "Duration spent in each ReAct phase.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase", "status"},
	)
	actionFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripnar",
			Subsystem: "orchestrator",
			Name:      "action_failures_total",
			Help:      "Total number of action executions that failed.",
		},
		[]string{"action"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tripnar",
			Subsystem: "orchestrator",
			Name:      "action_cache_hits_total",
			Help:      "Number of action executions served from the result cache.",
		},
	)
	requestsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tripnar",
			Subsystem: "orchestrator",
			Name:      "requests_active",
			Help:      "Number of requests currently inside the ReAct loop.",
		},
	)

	collectors := []prometheus.Collector{phaseDuration, actionFailures, cacheHits, requestsActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.HistogramVec:
					phaseDuration = existing
				case *prometheus.CounterVec:
					actionFailures = existing
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		phaseDuration:  phaseDuration,
		actionFailures: actionFailures,
		cacheHits:      cacheHits,
		requestsActive: requestsActive,
	}
}

func (m *Metrics) observePhase(phase, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(elapsed.Seconds())
}

func (m *Metrics) actionFailed(action string) {
	if m == nil {
		return
	}
	m.actionFailures.WithLabelValues(action).Inc()
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) requestStarted() {
	if m == nil {
		return
	}
	m.requestsActive.Inc()
}

func (m *Metrics) requestFinished() {
	if m == nil {
		return
	}
	m.requestsActive.Dec()
}
