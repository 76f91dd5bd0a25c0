package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration         *prom.HistogramVec
	taskResults          *prom.CounterVec
	runDuration          *prom.HistogramVec
	runOutcomes          *prom.CounterVec
	reloadEvents         prom.Counter
	notificationFailures *prom.CounterVec
	watchTriggers        *prom.CounterVec
	liveReloadClients    prom.Gauge
}

// NewPrometheusRecorder constructs and registers the assetbuilder metrics on reg.
// A nil registry gets a private one so tests never collide on the global registerer.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetbuilder",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual task runs",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetbuilder",
			Name:      "task_results_total",
			Help:      "Task run results by outcome",
		}, []string{"task", "result"}),
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetbuilder",
			Name:      "run_duration_seconds",
			Help:      "Duration of top-level graph runs",
			Buckets:   prom.DefBuckets,
		}, []string{"entry"}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetbuilder",
			Name:      "run_outcomes_total",
			Help:      "Top-level run outcomes",
		}, []string{"entry", "result"}),
		reloadEvents: prom.NewCounter(prom.CounterOpts{
			Namespace: "assetbuilder",
			Name:      "reload_events_total",
			Help:      "Reload events emitted to the artifact sink",
		}),
		notificationFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetbuilder",
			Name:      "notification_failures_total",
			Help:      "Reload notifications a listener failed to receive",
		}, []string{"listener"}),
		watchTriggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetbuilder",
			Name:      "watch_triggers_total",
			Help:      "File change triggers per binding",
		}, []string{"binding", "coalesced"}),
		liveReloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: "assetbuilder",
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients",
		}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.runDuration, pr.runOutcomes,
		pr.reloadEvents, pr.notificationFailures, pr.watchTriggers, pr.liveReloadClients)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(entry string, d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(entry).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(entry string, result ResultLabel) {
	if p == nil {
		return
	}
	p.runOutcomes.WithLabelValues(entry, string(result)).Inc()
}

func (p *PrometheusRecorder) IncReloadEvent() {
	if p == nil {
		return
	}
	p.reloadEvents.Inc()
}

func (p *PrometheusRecorder) IncNotificationFailure(listener string) {
	if p == nil {
		return
	}
	p.notificationFailures.WithLabelValues(listener).Inc()
}

func (p *PrometheusRecorder) IncWatchTrigger(binding string, coalesced bool) {
	if p == nil {
		return
	}
	p.watchTriggers.WithLabelValues(binding, strconv.FormatBool(coalesced)).Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil {
		return
	}
	p.liveReloadClients.Set(float64(n))
}
