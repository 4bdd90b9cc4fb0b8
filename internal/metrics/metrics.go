// Package metrics exposes Prometheus metrics about analysis runs.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kvtrace/keyloc/internal/model"
)

const namespace = "keyloc"

// Run results used as the result label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Recorder records run outcomes in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	lastSampleCount prometheus.Gauge
	lastKeySeqCount prometheus.Gauge
	runDuration     prometheus.Histogram
	rendered        *prometheus.CounterVec
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of analysis runs by result",
			},
			[]string{"result"},
		),
		lastSampleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sample_count",
			Help:      "Samples of the target table in the last successful run",
		}),
		lastKeySeqCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_key_seq_count",
			Help:      "Distinct keys in the last successful run",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of analysis runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 18), // 10ms to ~22min
		}),
		rendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statistics_rendered_total",
				Help:      "Total number of statistics computed and rendered",
			},
			[]string{"statistic"},
		),
	}

	for _, c := range []prometheus.Collector{r.runs, r.lastSampleCount, r.lastKeySeqCount, r.runDuration, r.rendered} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	for _, result := range []string{ResultSuccess, ResultFailure, ResultSkipped} {
		r.runs.WithLabelValues(result)
	}
	return r, nil
}

// ObserveRun records a finished run. report is nil when the run failed.
func (r *Recorder) ObserveRun(report *model.Report, err error, duration time.Duration) {
	r.runDuration.Observe(duration.Seconds())
	if err != nil || report == nil {
		r.runs.WithLabelValues(ResultFailure).Inc()
		return
	}

	r.runs.WithLabelValues(ResultSuccess).Inc()
	r.lastSampleCount.Set(float64(report.Metadata.SampleCount))
	r.lastKeySeqCount.Set(float64(report.Metadata.KeySeqCount))
	for _, s := range report.Statistics {
		r.rendered.WithLabelValues(string(s.Statistic)).Inc()
	}
}

// ObserveSkipped records a scheduled run skipped because another was in progress.
func (r *Recorder) ObserveSkipped() {
	r.runs.WithLabelValues(ResultSkipped).Inc()
}

// Registry returns the registry holding the run metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
