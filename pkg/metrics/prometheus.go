package metrics

import (
	"SignalSim/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal       *prometheus.CounterVec
	tradesTotal     *prometheus.CounterVec
	finalValue      *prometheus.GaugeVec
	signalsIngested prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg (tests pass a private registry).
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalsim_runs_total",
				Help: "Simulation runs by model identifier and terminal status",
			},
			[]string{"model", "status"},
		),
		tradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalsim_trades_total",
				Help: "Executed trades by model identifier and side",
			},
			[]string{"model", "side"},
		),
		finalValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalsim_final_portfolio_value",
				Help: "Portfolio value at the last snapshot of the latest run",
			},
			[]string{"model"},
		),
		signalsIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signalsim_signals_ingested_total",
				Help: "Signal rows accepted from the ingest topic",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalsim_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalsim_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordRun(model, status string) {
	r.runsTotal.WithLabelValues(model, status).Inc()
}

func (r *Recorder) RecordTrades(model string, side models.Side, n int) {
	if n <= 0 {
		return
	}
	r.tradesTotal.WithLabelValues(model, string(side)).Add(float64(n))
}

func (r *Recorder) RecordFinalValue(model string, value float64) {
	r.finalValue.WithLabelValues(model).Set(value)
}

func (r *Recorder) RecordSignalsIngested(n int) {
	if n > 0 {
		r.signalsIngested.Add(float64(n))
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
