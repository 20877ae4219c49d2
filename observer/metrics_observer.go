package observer

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcshock/imgpipe/pipeline"
	"github.com/dcshock/imgpipe/resource"
)

const namespace = "imgpipe"

// MetricsObserver records run and stage metrics.
type MetricsObserver struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stages        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec

	mu     sync.Mutex
	active map[string]activeRun
}

type activeRun struct {
	name    string
	started time.Time
}

// NewMetricsObserver registers its collectors on reg. A nil reg uses the
// default registerer.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &MetricsObserver{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"pipeline", "status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"pipeline"}),
		stages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions by ownership policy and outcome",
		}, []string{"stage", "policy", "status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage duration",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stage"}),
		active: make(map[string]activeRun),
	}
}

func (o *MetricsObserver) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	o.mu.Lock()
	o.active[runID] = activeRun{name: name, started: time.Now()}
	o.mu.Unlock()
	return nil
}

func (o *MetricsObserver) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	o.mu.Lock()
	run, ok := o.active[runID]
	delete(o.active, runID)
	o.mu.Unlock()
	if !ok {
		return nil
	}
	o.runs.WithLabelValues(run.name, status(err)).Inc()
	o.runDuration.WithLabelValues(run.name).Observe(time.Since(run.started).Seconds())
	return nil
}

func (o *MetricsObserver) BeforeStage(ctx context.Context, runID string, stageIndex int, stage pipeline.StageInfo, input interface{}) error {
	return nil
}

func (o *MetricsObserver) AfterStage(ctx context.Context, runID string, stageIndex int, stage pipeline.StageInfo, input, output interface{}, stageErr error, duration time.Duration) error {
	o.stages.WithLabelValues(stage.Name, stage.Policy.String(), status(stageErr)).Inc()
	o.stageDuration.WithLabelValues(stage.Name).Observe(duration.Seconds())
	return nil
}

// status labels an outcome; lifecycle failures get their own value.
func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case resource.IsLifecycle(err):
		return "lifecycle"
	default:
		return "failed"
	}
}

var _ pipeline.Observer = (*MetricsObserver)(nil)
