// Package metrics records Prometheus metrics for model calls, fallbacks and
// artifact persistence.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics sink used by the generation pipeline.
type Recorder interface {
	// ObserveModelCall records one call to the model backend. purpose is
	// plan, component, classify or patch; status is ok, error, overloaded,
	// malformed or empty.
	ObserveModelCall(purpose, status string, duration time.Duration)
	// IncFallback counts a static or heuristic substitute for a model result.
	IncFallback(purpose, component string)
	// IncSave counts an artifact write by outcome (ok or error).
	IncSave(status string)
	// ObserveGeneration records a finished generation run.
	ObserveGeneration(components int, duration time.Duration)
}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	modelCalls   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	fallbacks    *prometheus.CounterVec
	saves        *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runSize      prometheus.Histogram
}

// NewPrometheusRecorder registers the pipeline metrics with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		modelCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecraft_model_calls_total",
				Help: "Total number of model calls by purpose and outcome",
			},
			[]string{"purpose", "status"},
		),
		callDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecraft_model_call_duration_seconds",
				Help:    "Duration of model calls in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"purpose"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecraft_fallbacks_total",
				Help: "Total number of fallbacks used instead of a model result",
			},
			[]string{"purpose", "component"},
		),
		saves: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecraft_component_saves_total",
				Help: "Total number of component artifact writes by outcome",
			},
			[]string{"status"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitecraft_generation_duration_seconds",
				Help:    "Wall time of a full site generation run",
				Buckets: prometheus.ExponentialBuckets(5, 2, 8),
			},
		),
		runSize: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitecraft_generation_components",
				Help:    "Number of components per generation run",
				Buckets: prometheus.LinearBuckets(1, 1, 8),
			},
		),
	}
}

func (p *PrometheusRecorder) ObserveModelCall(purpose, status string, duration time.Duration) {
	p.modelCalls.WithLabelValues(purpose, status).Inc()
	p.callDuration.WithLabelValues(purpose).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncFallback(purpose, component string) {
	p.fallbacks.WithLabelValues(purpose, component).Inc()
}

func (p *PrometheusRecorder) IncSave(status string) {
	p.saves.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveGeneration(components int, duration time.Duration) {
	p.runDuration.Observe(duration.Seconds())
	p.runSize.Observe(float64(components))
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) ObserveModelCall(string, string, time.Duration) {}
func (Nop) IncFallback(string, string)                     {}
func (Nop) IncSave(string)                                 {}
func (Nop) ObserveGeneration(int, time.Duration)           {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
