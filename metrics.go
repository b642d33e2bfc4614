package assemblefs

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Hook result labels.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultMissing = "missing"
)

// Recorder receives pipeline metrics. NoopRecorder is used unless one is
// configured.
type Recorder interface {
	IncItem(stage string)
	IncHookResult(hook, result string)
	ObserveHookDuration(hook string, d time.Duration)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncItem(string) {}
func (NoopRecorder) IncHookResult(string, string) {}
func (NoopRecorder) ObserveHookDuration(string, time.Duration) {}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	items        *prom.CounterVec
	hookResults  *prom.CounterVec
	hookDuration *prom.HistogramVec
}

// NewPrometheusRecorder registers its collectors on reg, or on a fresh
// registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		items: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assemblefs",
			Name:      "items_total",
			Help:      "Files that passed a pipeline stage",
		}, []string{"stage"}),
		hookResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assemblefs",
			Name:      "hook_results_total",
			Help:      "Hook dispatches by outcome",
		}, []string{"hook", "result"}),
		hookDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assemblefs",
			Name:      "hook_duration_seconds",
			Help:      "Time spent running the observers of a hook",
			Buckets:   prom.DefBuckets,
		}, []string{"hook"}),
	}
	reg.MustRegister(pr.items, pr.hookResults, pr.hookDuration)
	return pr
}

func (p *PrometheusRecorder) IncItem(stage string) {
	p.items.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncHookResult(hook, result string) {
	p.hookResults.WithLabelValues(hook, result).Inc()
}

func (p *PrometheusRecorder) ObserveHookDuration(hook string, d time.Duration) {
	p.hookDuration.WithLabelValues(hook).Observe(d.Seconds())
}
