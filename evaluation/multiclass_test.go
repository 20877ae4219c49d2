package evaluation

import (
	"context"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/resource"
)

func scoredView(t *testing.T) dataset.View {
	t.Helper()
	vocab := []string{"a", "b"}
	f, err := dataset.NewFrame().With("LabelKey", dataset.KeyColumn{Keys: []uint32{1, 1, 2, 0}, Vocabulary: vocab})
	require.NoError(t, err)
	f, err = f.With("PredictedLabel", dataset.KeyColumn{Keys: []uint32{1, 2, 2, 1}, Vocabulary: vocab})
	require.NoError(t, err)
	f, err = f.With("Score", dataset.VectorColumn{Size: 2, Values: [][]float64{
		{0.9, 0.1}, {0.4, 0.6}, {0.2, 0.8}, {0.5, 0.5},
	}})
	require.NoError(t, err)
	return dataset.FromFrame(f)
}

func TestMulticlass(t *testing.T) {
	m, err := Multiclass(context.Background(), scoredView(t), "LabelKey", "PredictedLabel", &Options{TopK: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, m.Classes)
	assert.Equal(t, 3, m.Rows)
	assert.InDelta(t, 2.0/3, m.MicroAccuracy, 1e-12)
	assert.InDelta(t, 0.75, m.MacroAccuracy, 1e-12)

	wantLL := -(math.Log(0.9) + math.Log(0.4) + math.Log(0.8)) / 3
	assert.InDelta(t, wantLL, m.LogLoss, 1e-12)
	assert.InDelta(t, -(math.Log(0.9)+math.Log(0.4))/2, m.PerClassLogLoss[0], 1e-12)
	assert.InDelta(t, -math.Log(0.8), m.PerClassLogLoss[1], 1e-12)

	prior := -(2.0/3*math.Log(2.0/3) + 1.0/3*math.Log(1.0/3))
	assert.InDelta(t, (prior-wantLL)/prior, m.LogLossReduction, 1e-12)
	assert.InDelta(t, 2.0/3, m.TopKAccuracy, 1e-12)

	assert.Equal(t, []float64{1, 1, 0, 1}, m.ConfusionMatrix.RawMatrix().Data)
}

func TestMulticlass_TopK(t *testing.T) {
	m, err := Multiclass(context.Background(), scoredView(t), "LabelKey", "PredictedLabel", &Options{TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.TopKAccuracy)
}

func TestMulticlass_ClampsZeroProbability(t *testing.T) {
	f, err := dataset.NewFrame().With("L", dataset.KeyColumn{Keys: []uint32{1}, Vocabulary: []string{"a", "b"}})
	require.NoError(t, err)
	f, err = f.With("P", dataset.KeyColumn{Keys: []uint32{2}, Vocabulary: []string{"a", "b"}})
	require.NoError(t, err)
	f, err = f.With("Score", dataset.VectorColumn{Size: 2, Values: [][]float64{{0, 1}}})
	require.NoError(t, err)

	m, err := Multiclass(context.Background(), dataset.FromFrame(f), "L", "P", nil)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(minProbability), m.LogLoss, 1e-9)
	assert.Zero(t, m.MicroAccuracy)
	assert.Zero(t, m.LogLossReduction, "a single present class has no prior log-loss")
}

func TestMulticlass_ColumnErrors(t *testing.T) {
	_, err := Multiclass(context.Background(), scoredView(t), "Missing", "PredictedLabel", nil)
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
	assert.False(t, IsEvaluationError(err))

	_, err = Multiclass(context.Background(), scoredView(t), "LabelKey", "PredictedLabel", &Options{ScoreColumn: "LabelKey"})
	assert.ErrorIs(t, err, dataset.ErrColumnType)
}

type failingView struct {
	err error
}

func (v failingView) Frame(ctx context.Context) (*dataset.Frame, error) { return nil, v.err }
func (v failingView) Schema() dataset.Schema                              { return nil }

func TestMulticlass_WrapsMaterializationFailure(t *testing.T) {
	lifecycle := &resource.LifecycleError{ID: "img-1", Op: "size", Err: resource.ErrUseAfterDispose}
	cause := errors.Wrap(errors.Wrap(lifecycle, "stage 0 (resize_images)"), "transform \"model\"")
	core, logs := observer.New(zap.ErrorLevel)

	_, err := Multiclass(context.Background(), failingView{err: cause}, "LabelKey", "PredictedLabel", &Options{Logger: zap.New(core)})
	require.Error(t, err)

	var ee *EvaluationError
	require.True(t, errors.As(err, &ee))
	assert.Same(t, cause, ee.Cause)
	assert.True(t, errors.Is(err, resource.ErrUseAfterDispose))

	var le *resource.LifecycleError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "img-1", le.ID)
	assert.Contains(t, err.Error(), "object is disposed")
	assert.Equal(t, 1, logs.Len())
}
