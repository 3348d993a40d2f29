package metrics

import (
	"context"
	"net/http"
	"strings"

	"quorum/internal/consensus"
	"quorum/internal/pkg/circuit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes consensus outcomes as Prometheus metrics.
type Recorder struct {
	reg *prometheus.Registry

	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	breaker   *prometheus.GaugeVec
	reloads   *prometheus.CounterVec
}

var _ consensus.EventSink = (*Recorder)(nil)

// New creates a recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Recorder{
		reg: reg,
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_decisions_total",
				Help: "Consensus outcomes per symbol",
			},
			[]string{"symbol", "outcome", "reason_code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quorum_decide_duration_seconds",
				Help:    "Time spent deciding one symbol",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		breaker: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quorum_provider_breaker_state",
				Help: "Provider circuit state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"provider"},
		),
		reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_config_reloads_total",
				Help: "Configuration reload attempts",
			},
			[]string{"result"},
		),
	}
}

// Record implements consensus.EventSink.
func (r *Recorder) Record(_ context.Context, ev consensus.Event) error {
	outcome := ev.Outcome()
	code := string(ev.ReasonCode)
	if code == "" {
		code = "none"
	}
	r.decisions.WithLabelValues(ev.Symbol, outcome, code).Inc()
	r.duration.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
	return nil
}

// RecordBreaker matches Dispatcher.SetBreakerHandler.
func (r *Recorder) RecordBreaker(name string, _, to circuit.State) {
	r.breaker.WithLabelValues(strings.TrimPrefix(name, "provider:")).Set(float64(to))
}

// RecordReload counts a configuration reload.
func (r *Recorder) RecordReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.reloads.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry (tests, custom exporters).
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
