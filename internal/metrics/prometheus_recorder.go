package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "spark"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	reg             *prom.Registry
	taskDuration    *prom.HistogramVec
	taskResults     *prom.CounterVec
	buildDuration   prom.Histogram
	buildOutcome    *prom.CounterVec
	discoveryErrors prom.Counter
	inFlight        prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual compile tasks",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.taskResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compile_results_total",
			Help:      "Compile task results by outcome",
		}, []string{"result"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.discoveryErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_errors_total",
			Help:      "Source patterns that failed to expand",
		})
		pr.inFlight = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "compile_in_flight",
			Help:      "Compiler processes currently running",
		})
		reg.MustRegister(pr.taskDuration, pr.taskResults, pr.buildDuration, pr.buildOutcome, pr.discoveryErrors, pr.inFlight)
	})
	return pr
}

// Registry returns the registry the metrics were registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) ObserveTaskDuration(d time.Duration, result ResultLabel) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(result ResultLabel) {
	if p == nil || p.taskResults == nil {
		return
	}
	p.taskResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncDiscoveryError() {
	if p == nil || p.discoveryErrors == nil {
		return
	}
	p.discoveryErrors.Inc()
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil || p.inFlight == nil {
		return
	}
	p.inFlight.Set(float64(n))
}
