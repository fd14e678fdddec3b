package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry     *prom.Registry
	passDuration prom.Histogram
	jobDuration  prom.Histogram
	passCount    prom.Histogram
	jobOutcomes  *prom.CounterVec
	sourceKinds  *prom.CounterVec
	queueDepth   prom.Gauge
	activeJobs   prom.Gauge
}

// NewPrometheusRecorder constructs and registers the texbuild metrics on reg
// (a fresh registry is created when reg is nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.passDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "texbuild",
		Name:      "pass_duration_seconds",
		Help:      "Duration of individual engine passes",
		Buckets:   prom.DefBuckets,
	})
	pr.jobDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "texbuild",
		Name:      "job_duration_seconds",
		Help:      "Total compile job duration including reruns",
		Buckets:   prom.DefBuckets,
	})
	pr.passCount = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "texbuild",
		Name:      "passes_per_job",
		Help:      "Engine passes needed per job",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})
	pr.jobOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "texbuild",
		Name:      "job_outcomes_total",
		Help:      "Terminal job outcomes",
	}, []string{"outcome"})
	pr.sourceKinds = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "texbuild",
		Name:      "source_kinds_total",
		Help:      "Accepted jobs by input kind",
	}, []string{"kind"})
	pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
		Namespace: "texbuild",
		Name:      "queue_depth",
		Help:      "Jobs waiting in the dispatch queue",
	})
	pr.activeJobs = prom.NewGauge(prom.GaugeOpts{
		Namespace: "texbuild",
		Name:      "active_jobs",
		Help:      "Jobs currently executing",
	})
	reg.MustRegister(pr.passDuration, pr.jobDuration, pr.passCount, pr.jobOutcomes, pr.sourceKinds, pr.queueDepth, pr.activeJobs)
	return pr
}

// HTTPHandler returns the /metrics handler for this recorder's registry.
func (p *PrometheusRecorder) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	if p == nil || p.passDuration == nil {
		return
	}
	p.passDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveJobDuration(d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePassCount(passes int) {
	if p == nil || p.passCount == nil {
		return
	}
	p.passCount.Observe(float64(passes))
}

func (p *PrometheusRecorder) IncJobOutcome(outcome Outcome) {
	if p == nil || p.jobOutcomes == nil {
		return
	}
	p.jobOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncSourceKind(kind string) {
	if p == nil || p.sourceKinds == nil {
		return
	}
	p.sourceKinds.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetActiveJobs(n int) {
	if p == nil || p.activeJobs == nil {
		return
	}
	p.activeJobs.Set(float64(n))
}
