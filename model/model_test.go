package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
	"github.com/dcshock/imgpipe/resource"
	"github.com/dcshock/imgpipe/trainers"
	"github.com/dcshock/imgpipe/transforms"
)

func classifierChain(sameSize transforms.SameSizeMode, checkpointAfterExtract bool) *Chain {
	c := NewChain("test",
		transforms.ResizeImages{Input: dataset.SourceImageColumn, Output: "Resized", Width: 2, Height: 2, SameSize: sameSize},
		transforms.ExtractPixels{Input: "Resized", Output: "Pixels", Interleave: true, Offset: 177},
	)
	if checkpointAfterExtract {
		c = c.Append(transforms.CacheCheckpoint{})
	}
	return c.
		Append(transforms.MapValueToKey{Input: dataset.LabelValueColumn, Output: "LabelKey"}).
		Append(trainers.LbfgsMaximumEntropy{Label: "LabelKey", Features: "Pixels", MaxIterations: 20}).
		Append(transforms.MapKeyToValue{Input: trainers.PredictedLabelColumn, Output: "PredictedLabelValue"})
}

func records(t *testing.T, size int, seed uint64) []dataset.Record {
	t.Helper()
	recs, err := dataset.RandomRecords(2, size, seed, nil)
	require.NoError(t, err)
	return recs
}

type stageCounter struct {
	counts map[string]int
}

func (s *stageCounter) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	return nil
}

func (s *stageCounter) AfterPipeline(ctx context.Context, runID string, result interface{}, err error) error {
	return nil
}

func (s *stageCounter) BeforeStage(ctx context.Context, runID string, i int, stage pipeline.StageInfo, input interface{}) error {
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[stage.Name]++
	return nil
}

func (s *stageCounter) AfterStage(ctx context.Context, runID string, i int, stage pipeline.StageInfo, input, output interface{}, err error, d time.Duration) error {
	return nil
}

func TestChain_FitTransformCollect(t *testing.T) {
	ctx := context.Background()
	train := records(t, 2, 1)
	m, err := classifierChain(transforms.SameSizeAlias, false).Fit(ctx, dataset.FromRecords(train), nil)
	require.NoError(t, err)
	assert.Len(t, m.Stages(), 5)

	test := records(t, 2, 2)
	view := m.Transform(dataset.FromRecords(test), nil)
	assert.Zero(t, Materializations(view), "transform is lazy")

	out, err := dataset.Collect(ctx, view, "PredictedLabelValue", trainers.ScoreColumn)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, o := range out {
		assert.Contains(t, []string{"label_0", "label_1"}, o.PredictedLabelValue)
		assert.Len(t, o.Score, 2)
	}
	assert.EqualValues(t, 1, Materializations(view))

	for _, r := range append(train, test...) {
		h, err := r.Image.Height()
		require.NoError(t, err)
		assert.Equal(t, 2, h)
	}

	_, ok := view.Schema().Lookup(dataset.SourceImageColumn)
	assert.False(t, ok, "materialized frames carry no images")
	_, err = view.Schema().Require(trainers.ScoreColumn, dataset.KindVector)
	assert.NoError(t, err)
}

func TestModel_UnguardedAliasDisposesCallerImages(t *testing.T) {
	ctx := context.Background()
	m, err := classifierChain(transforms.SameSizeAlias, false).Fit(ctx, dataset.FromRecords(records(t, 2, 1)), nil)
	require.NoError(t, err)

	test := records(t, 2, 2)
	view := m.Transform(dataset.FromRecords(test), &pipeline.RunOptions{Unguarded: true})
	_, err = view.Frame(ctx)
	require.NoError(t, err, "the first materialization still reads live images")

	_, err = test[0].Image.Height()
	assert.True(t, resource.IsUseAfterDispose(err))

	_, err = view.Frame(ctx)
	require.Error(t, err)
	assert.True(t, resource.IsUseAfterDispose(err))
	assert.Contains(t, err.Error(), "stage 0 (resize_images)")
	assert.EqualValues(t, 2, Materializations(view))
}

func TestModel_UnguardedResizeOfOtherSizeIsSafe(t *testing.T) {
	ctx := context.Background()
	m, err := classifierChain(transforms.SameSizeAlias, false).Fit(ctx, dataset.FromRecords(records(t, 3, 1)), nil)
	require.NoError(t, err)

	test := records(t, 3, 2)
	view := m.Transform(dataset.FromRecords(test), &pipeline.RunOptions{Unguarded: true})
	for i := 0; i < 2; i++ {
		_, err = view.Frame(ctx)
		require.NoError(t, err)
	}
	h, err := test[0].Image.Height()
	require.NoError(t, err)
	assert.Equal(t, 3, h)
}

func TestChain_SchemaCheckedBeforeFitting(t *testing.T) {
	counter := &stageCounter{}
	c := NewChain("broken",
		transforms.ExtractPixels{Input: "Resized", Output: "Pixels"},
		transforms.ResizeImages{Input: dataset.SourceImageColumn, Output: "Resized", Width: 2, Height: 2},
	)
	_, err := c.Fit(context.Background(), dataset.FromRecords(records(t, 2, 1)), &FitOptions{Observer: counter})
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
	assert.Contains(t, err.Error(), "estimator 0 (extract_pixels)")
	assert.Empty(t, counter.counts)
}

func TestChain_EmptyChain(t *testing.T) {
	_, err := NewChain("empty").Fit(context.Background(), dataset.FromRecords(nil), nil)
	assert.Error(t, err)
}

func TestChain_CheckpointMaterializesPrefixOnce(t *testing.T) {
	ctx := context.Background()
	train := dataset.FromRecords(records(t, 2, 1))

	plain := &stageCounter{}
	_, err := classifierChain(transforms.SameSizeCopy, false).Fit(ctx, train, &FitOptions{Observer: plain})
	require.NoError(t, err)
	assert.Equal(t, 4, plain.counts["resize_images"])

	cached := &stageCounter{}
	_, err = classifierChain(transforms.SameSizeCopy, true).Fit(ctx, train, &FitOptions{Observer: cached})
	require.NoError(t, err)
	assert.Equal(t, 2, cached.counts["resize_images"])
	assert.Equal(t, 2, cached.counts["map_value_to_key"])
}

func TestChain_AppendIsImmutable(t *testing.T) {
	a := NewChain("a", transforms.CacheCheckpoint{})
	b := a.Append(transforms.CacheCheckpoint{})
	assert.Len(t, a.Estimators(), 1)
	assert.Len(t, b.Estimators(), 2)
	assert.Equal(t, "a", b.Name())
}

func TestChain_FitLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	_, err := classifierChain(transforms.SameSizeCopy, true).Fit(context.Background(), dataset.FromRecords(records(t, 2, 1)), &FitOptions{Logger: zap.New(core)})
	require.NoError(t, err)
	assert.Equal(t, 6, logs.FilterMessage("fitted estimator").Len())
	assert.Equal(t, 1, logs.FilterMessage("cached training data").Len())
	assert.Equal(t, 1, logs.FilterMessage("fitted chain").FilterField(zap.String("chain", "test")).Len())
}

func TestModel_RunIDPerMaterialization(t *testing.T) {
	ctx := context.Background()
	m, err := classifierChain(transforms.SameSizeCopy, false).Fit(ctx, dataset.FromRecords(records(t, 2, 1)), nil)
	require.NoError(t, err)

	var ids []string
	obs := &runIDs{ids: &ids}
	view := m.Transform(dataset.FromRecords(records(t, 2, 2)), &pipeline.RunOptions{RunID: "eval", Observer: obs})
	for i := 0; i < 2; i++ {
		_, err := view.Frame(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"eval-1", "eval-2"}, ids)
}

type runIDs struct {
	stageCounter
	ids *[]string
}

func (r *runIDs) BeforePipeline(ctx context.Context, runID, name string, payload interface{}) error {
	*r.ids = append(*r.ids, runID)
	return nil
}
