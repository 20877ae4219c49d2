package observer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dcshock/imgpipe/pipeline"
	"github.com/dcshock/imgpipe/resource"
)

// LogObserver logs pipeline runs and stages.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver returns an observer that writes to log (nil: no-op).
func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	o.log.Info("pipeline started", zap.String("run_id", runID), zap.String("pipeline", name), describeField("input", payload))
	return nil
}

func (o *LogObserver) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	if err != nil {
		o.log.Error("pipeline failed", zap.String("run_id", runID), zap.Error(err), zap.Bool("lifecycle", resource.IsLifecycle(err)))
		return nil
	}
	o.log.Info("pipeline finished", zap.String("run_id", runID), describeField("result", result))
	return nil
}

func (o *LogObserver) BeforeStage(ctx context.Context, runID string, stageIndex int, stage pipeline.StageInfo, input interface{}) error {
	o.log.Debug("stage started",
		zap.String("run_id", runID),
		zap.Int("stage_index", stageIndex),
		zap.String("stage", stage.Name),
		zap.Stringer("policy", stage.Policy))
	return nil
}

func (o *LogObserver) AfterStage(ctx context.Context, runID string, stageIndex int, stage pipeline.StageInfo, input, output interface{}, stageErr error, duration time.Duration) error {
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.Int("stage_index", stageIndex),
		zap.String("stage", stage.Name),
		zap.Duration("duration", duration),
	}
	if stageErr != nil {
		o.log.Warn("stage failed", append(fields, zap.Error(stageErr), zap.Bool("lifecycle", resource.IsLifecycle(stageErr)))...)
		return nil
	}
	o.log.Debug("stage finished", append(fields, describeField("output", output))...)
	return nil
}

var _ pipeline.Observer = (*LogObserver)(nil)
