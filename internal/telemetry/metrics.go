package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pulsestats"

// outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the Prometheus collectors updated by the scheduler.
//
// All methods are safe on a nil receiver so callers that do not care about
// metrics can pass nil.
type Metrics struct {
	polls         *prometheus.CounterVec
	sinkWrites    *prometheus.CounterVec
	inFlight      prometheus.Gauge
	fetchDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Completed profile fetches by outcome.",
		}, []string{"outcome"}),
		sinkWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Measurement batches handed to the sink by outcome.",
		}, []string{"outcome"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "polls_in_flight",
			Help:      "Polls dispatched but not yet settled.",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of a single profile fetch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// PollStarted records a dispatched poll.
func (m *Metrics) PollStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// PollSettled records that a dispatched poll has finished, whatever its outcome.
func (m *Metrics) PollSettled() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// ObserveFetch records one fetch attempt.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
	m.polls.WithLabelValues(outcome(err)).Inc()
}

// ObserveSinkWrite records one sink write attempt.
func (m *Metrics) ObserveSinkWrite(err error) {
	if m == nil {
		return
	}
	m.sinkWrites.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
