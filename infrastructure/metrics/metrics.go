// Package metrics provides Prometheus metrics collection for the engine runner.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors exposed by a running game server.
type Metrics struct {
	// Stepping metrics
	StepsTotal     prometheus.Counter
	StepDuration   prometheus.Histogram
	EntityCount    prometheus.Gauge
	EventsApplied  *prometheus.CounterVec
	RewindsTotal   prometheus.Counter
	HistoryTooShortTotal prometheus.Counter

	// Network metrics
	RemoteEventsTotal    *prometheus.CounterVec
	RemoteEventsRejected *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered against
// the default Prometheus registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keind_steps_total",
			Help: "Total number of engine steps executed",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keind_step_duration_seconds",
			Help:    "Wall-clock duration of a single engine step",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		}),
		EntityCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keind_entity_count",
			Help: "Current number of entities in the engine table",
		}),
		EventsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keind_events_applied_total",
				Help: "Total number of engine events applied, by kind",
			},
			[]string{"kind"},
		),
		RewindsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keind_rewinds_total",
			Help: "Total number of past-dated register_event calls that triggered a replay",
		}),
		HistoryTooShortTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keind_history_too_short_total",
			Help: "Total number of register_event calls rejected because the snapshot ring no longer covers the target step",
		}),
		RemoteEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keind_remote_events_total",
				Help: "Total number of RemoteEngineEvent messages accepted over the network protocol",
			},
			[]string{"kind"},
		),
		RemoteEventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keind_remote_events_rejected_total",
				Help: "Total number of RemoteEngineEvent messages rejected, by reason",
			},
			[]string{"reason"},
		),
		ServiceUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keind_service_uptime_seconds",
			Help: "Service uptime in seconds",
		}),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keind_service_info",
				Help: "Service build/environment information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.StepsTotal,
			m.StepDuration,
			m.EntityCount,
			m.EventsApplied,
			m.RewindsTotal,
			m.HistoryTooShortTotal,
			m.RemoteEventsTotal,
			m.RemoteEventsRejected,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordStep records the completion of a single engine step.
func (m *Metrics) RecordStep(duration time.Duration, entityCount int) {
	if m == nil {
		return
	}
	m.StepsTotal.Inc()
	m.StepDuration.Observe(duration.Seconds())
	m.EntityCount.Set(float64(entityCount))
}

// RecordEventApplied records that an engine event of the given kind was applied.
func (m *Metrics) RecordEventApplied(kind string) {
	if m == nil {
		return
	}
	m.EventsApplied.WithLabelValues(kind).Inc()
}

// RecordRewind records that register_event triggered a replay.
func (m *Metrics) RecordRewind() {
	if m == nil {
		return
	}
	m.RewindsTotal.Inc()
}

// RecordHistoryTooShort records a rejected past-dated register_event call.
func (m *Metrics) RecordHistoryTooShort() {
	if m == nil {
		return
	}
	m.HistoryTooShortTotal.Inc()
}

// RecordRemoteEvent records an accepted RemoteEngineEvent, by kind.
func (m *Metrics) RecordRemoteEvent(kind string) {
	if m == nil {
		return
	}
	m.RemoteEventsTotal.WithLabelValues(kind).Inc()
}

// RecordRemoteEventRejected records a rejected RemoteEngineEvent, by reason.
func (m *Metrics) RecordRemoteEventRejected(reason string) {
	if m == nil {
		return
	}
	m.RemoteEventsRejected.WithLabelValues(reason).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("KEIND_ENV")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production (KEIND_ENV=production): disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return getEnvironment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance, lazily initialized.
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("keind")
	}
	return globalMetrics
}
