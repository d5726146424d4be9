package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/autorecord/internal/domain/model"
)

const metricsNamespace = "autorecord"

// Metrics is a prometheus.Collector for the recording pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	outcomes            *prometheus.CounterVec
	broadcasts          prometheus.Counter
	scanDuration        prometheus.Histogram
	confirmationLatency prometheus.Histogram
	sessionActive       prometheus.GaugeFunc
}

// NewMetrics returns a new Metrics. sessionActive is sampled at scrape time.
func NewMetrics(sessionActive func() bool) *Metrics {
	return &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "record_outcomes_total",
				Help:      "Recording attempts by outcome and reason.",
			}, []string{"outcome", "reason"},
		),
		broadcasts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "broadcasts_total",
				Help:      "Signed transactions accepted by the ledger node.",
			},
		),
		scanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "scan_duration_seconds",
				Help:      "Time taken by one scan invocation.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
		confirmationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "confirmation_latency_seconds",
				Help:      "Time from broadcast to confirmed receipt.",
				Buckets:   []float64{5, 15, 30, 60, 90, 120, 300},
			},
		),
		sessionActive: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "session_active",
				Help:      "1 while an unlocked signing session exists.",
			},
			func() float64 {
				if sessionActive != nil && sessionActive() {
					return 1
				}
				return 0
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.outcomes.Describe(ch)
	m.broadcasts.Describe(ch)
	m.scanDuration.Describe(ch)
	m.confirmationLatency.Describe(ch)
	m.sessionActive.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.outcomes.Collect(ch)
	m.broadcasts.Collect(ch)
	m.scanDuration.Collect(ch)
	m.confirmationLatency.Collect(ch)
	m.sessionActive.Collect(ch)
}

func (m *Metrics) observeOutcome(o model.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o.Kind), o.Reason()).Inc()
}

func (m *Metrics) observeBroadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) observeScan(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
}

func (m *Metrics) observeConfirmation(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmationLatency.Observe(d.Seconds())
}
