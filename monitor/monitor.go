// monitor/monitor.go
package monitor

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	Commands         *prometheus.CounterVec
	CommandLatency   *prometheus.HistogramVec
	ActiveRounds     *prometheus.GaugeVec
	RoundsEnded      *prometheus.CounterVec
	GuessesSubmitted *prometheus.CounterVec
	Sessions         prometheus.Gauge
	PlaybackFailures *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled by name and outcome",
		}, []string{"command", "outcome"}),
		CommandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Command processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"command"}),
		ActiveRounds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rounds",
			Help:      "1 while a round is running on the instance",
		}, []string{"instance"}),
		RoundsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_ended_total",
			Help:      "Rounds scored",
		}, []string{"instance"}),
		GuessesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guesses_submitted_total",
			Help:      "Guesses accepted",
		}, []string{"instance"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Connected command-channel sessions",
		}),
		PlaybackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_failures_total",
			Help:      "Failed media player operations",
		}, []string{"instance", "operation"}),
	}

	reg.MustRegister(
		m.Commands,
		m.CommandLatency,
		m.ActiveRounds,
		m.RoundsEnded,
		m.GuessesSubmitted,
		m.Sessions,
		m.PlaybackFailures,
	)

	return m
}

// Monitor records service metrics. A nil *Monitor is valid and records nothing.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since start",
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Monitor) ObserveCommand(command, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.Commands.WithLabelValues(command, outcome).Inc()
	m.metrics.CommandLatency.WithLabelValues(command).Observe(duration.Seconds())
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

// RequestCount is the number of commands observed since start.
func (m *Monitor) RequestCount() int64 {
	if m == nil {
		return 0
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

func (m *Monitor) SetRoundActive(instance string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	m.metrics.ActiveRounds.WithLabelValues(instance).Set(v)
}

func (m *Monitor) IncRoundsEnded(instance string) {
	if m == nil {
		return
	}
	m.metrics.RoundsEnded.WithLabelValues(instance).Inc()
}

func (m *Monitor) IncGuesses(instance string) {
	if m == nil {
		return
	}
	m.metrics.GuessesSubmitted.WithLabelValues(instance).Inc()
}

func (m *Monitor) IncSessions() {
	if m == nil {
		return
	}
	m.metrics.Sessions.Inc()
}

func (m *Monitor) DecSessions() {
	if m == nil {
		return
	}
	m.metrics.Sessions.Dec()
}

func (m *Monitor) IncPlaybackFailures(instance, operation string) {
	if m == nil {
		return
	}
	m.metrics.PlaybackFailures.WithLabelValues(instance, operation).Inc()
}
