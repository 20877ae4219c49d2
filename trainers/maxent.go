// Package trainers holds the multiclass classifiers a chain can end in.
package trainers

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/dcshock/imgpipe/dataset"
	"github.com/dcshock/imgpipe/pipeline"
)

// Default output columns of a trained classifier.
const (
	PredictedLabelColumn = "PredictedLabel"
	ScoreColumn          = "Score"
)

// LbfgsMaximumEntropy trains a multinomial logistic regression (maximum
// entropy) classifier with L-BFGS. Label must be a key column and Features a
// vector column. The fitted stage adds PredictedLabel, a key column sharing
// the label vocabulary, and Score, the class probabilities.
type LbfgsMaximumEntropy struct {
	Label    string
	Features string

	L2            float64 // L2 weight; 0 means 1
	MaxIterations int     // 0 means 100
	Tolerance     float64 // gradient norm at which training stops; 0 means 1e-7
	History       int     // L-BFGS memory; 0 means 20

	PredictedLabel string // default PredictedLabelColumn
	Score          string // default ScoreColumn

	Logger *zap.Logger
}

func (t LbfgsMaximumEntropy) Name() string { return "lbfgs_maximum_entropy" }

func (t LbfgsMaximumEntropy) withDefaults() LbfgsMaximumEntropy {
	if t.L2 == 0 {
		t.L2 = 1
	}
	if t.MaxIterations == 0 {
		t.MaxIterations = 100
	}
	if t.Tolerance == 0 {
		t.Tolerance = 1e-7
	}
	if t.History == 0 {
		t.History = 20
	}
	if t.PredictedLabel == "" {
		t.PredictedLabel = PredictedLabelColumn
	}
	if t.Score == "" {
		t.Score = ScoreColumn
	}
	if t.Logger == nil {
		t.Logger = zap.NewNop()
	}
	return t
}

func (t LbfgsMaximumEntropy) Schema(in dataset.Schema) (dataset.Schema, error) {
	t = t.withDefaults()
	if t.L2 < 0 {
		return nil, errors.Newf("%s: l2 must not be negative", t.Name())
	}
	label, err := in.Require(t.Label, dataset.KindKey)
	if err != nil {
		return nil, errors.Wrap(err, t.Name())
	}
	if _, err := in.Require(t.Features, dataset.KindVector); err != nil {
		return nil, errors.Wrap(err, t.Name())
	}
	return in.
		With(t.PredictedLabel, dataset.ColumnType{Kind: dataset.KindKey, Size: label.Size}).
		With(t.Score, dataset.ColumnType{Kind: dataset.KindVector, Size: label.Size}), nil
}

// Fit trains on f and returns the scoring stage.
func (t LbfgsMaximumEntropy) Fit(ctx context.Context, f *dataset.Frame) (pipeline.Stage, error) {
	m, err := t.Train(ctx, f)
	if err != nil {
		return pipeline.Stage{}, err
	}
	return m.Stage(), nil
}

// Train fits the classifier. Rows with a missing label key are skipped.
func (t LbfgsMaximumEntropy) Train(ctx context.Context, f *dataset.Frame) (*MaxEntModel, error) {
	t = t.withDefaults()
	labels, err := f.KeyColumn(t.Label)
	if err != nil {
		return nil, errors.Wrap(err, t.Name())
	}
	features, err := f.VectorColumn(t.Features)
	if err != nil {
		return nil, errors.Wrap(err, t.Name())
	}
	k := len(labels.Vocabulary)
	if k == 0 {
		return nil, errors.Newf("%s: label column %q has an empty vocabulary", t.Name(), t.Label)
	}
	if features.Size == 0 {
		return nil, errors.Newf("%s: features column %q is empty", t.Name(), t.Features)
	}
	var obj objective
	obj.classes, obj.dim, obj.l2 = k, features.Size, t.L2
	for i, key := range labels.Keys {
		if key == 0 || int(key) > k {
			continue
		}
		if len(features.Values[i]) != obj.dim {
			return nil, errors.Newf("%s: row %d has %d features, want %d", t.Name(), i, len(features.Values[i]), obj.dim)
		}
		obj.xs = append(obj.xs, features.Values[i])
		obj.ys = append(obj.ys, int(key)-1)
	}
	if len(obj.xs) == 0 {
		return nil, errors.Newf("%s: no labelled rows to train on", t.Name())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return obj.eval(x, nil) },
		Grad: func(grad, x []float64) { obj.eval(x, grad) },
	}
	settings := &optimize.Settings{
		MajorIterations:   t.MaxIterations,
		GradientThreshold: t.Tolerance,
	}
	x0 := make([]float64, k*(obj.dim+1))
	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{Store: t.History})
	if result == nil {
		return nil, errors.Wrap(err, t.Name())
	}
	if err != nil {
		// The last location is still the best one found.
		t.Logger.Warn("optimizer stopped early", zap.Error(err), zap.String("status", result.Status.String()))
	}
	t.Logger.Debug("trained maximum entropy model",
		zap.Int("rows", len(obj.xs)),
		zap.Int("classes", k),
		zap.Int("features", obj.dim),
		zap.Int("iterations", result.Stats.MajorIterations),
		zap.Float64("loss", result.F),
		zap.String("status", result.Status.String()))

	return &MaxEntModel{
		Weights:        mat.NewDense(k, obj.dim, append([]float64(nil), result.X[:k*obj.dim]...)),
		Bias:           append([]float64(nil), result.X[k*obj.dim:]...),
		Vocabulary:     append([]string(nil), labels.Vocabulary...),
		features:       t.Features,
		predictedLabel: t.PredictedLabel,
		score:          t.Score,
	}, nil
}

// objective is the L2-regularized negative log-likelihood of a softmax model.
// Parameters are laid out as k*dim weights (row per class) then k biases.
type objective struct {
	classes, dim int
	l2           float64
	xs           [][]float64
	ys           []int
}

func (o *objective) eval(x, grad []float64) float64 {
	k, d := o.classes, o.dim
	w, b := x[:k*d], x[k*d:]
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	z := make([]float64, k)
	var loss float64
	for n, xs := range o.xs {
		for c := 0; c < k; c++ {
			z[c] = floats.Dot(w[c*d:(c+1)*d], xs) + b[c]
		}
		lse := floats.LogSumExp(z)
		loss += lse - z[o.ys[n]]
		if grad == nil {
			continue
		}
		for c := 0; c < k; c++ {
			g := math.Exp(z[c] - lse)
			if c == o.ys[n] {
				g--
			}
			floats.AddScaled(grad[c*d:(c+1)*d], g, xs)
			grad[k*d+c] += g
		}
	}
	loss += o.l2 / 2 * floats.Dot(w, w)
	if grad != nil {
		floats.AddScaled(grad[:k*d], o.l2, w)
	}
	return loss
}

// MaxEntModel is a trained maximum entropy classifier.
type MaxEntModel struct {
	Weights    *mat.Dense // classes x features
	Bias       []float64
	Vocabulary []string

	features       string
	predictedLabel string
	score          string
}

// Predict returns class probabilities and the 1-based predicted key.
func (m *MaxEntModel) Predict(x []float64) ([]float64, uint32, error) {
	k, d := m.Weights.Dims()
	if len(x) != d {
		return nil, 0, errors.Newf("feature vector has %d values, model expects %d", len(x), d)
	}
	z := make([]float64, k)
	mat.NewVecDense(k, z).MulVec(m.Weights, mat.NewVecDense(d, x))
	floats.Add(z, m.Bias)
	lse := floats.LogSumExp(z)
	for c := range z {
		z[c] = math.Exp(z[c] - lse)
	}
	return z, uint32(floats.MaxIdx(z) + 1), nil
}

// Stage returns the borrowing stage that scores the features column.
func (m *MaxEntModel) Stage() pipeline.Stage {
	return pipeline.Borrow("lbfgs_maximum_entropy", pipeline.Transform(func(ctx context.Context, f *dataset.Frame) (*dataset.Frame, error) {
		features, err := f.VectorColumn(m.features)
		if err != nil {
			return nil, err
		}
		k := len(m.Vocabulary)
		keys := make([]uint32, features.Len())
		scores := dataset.VectorColumn{Size: k, Values: make([][]float64, features.Len())}
		for i, x := range features.Values {
			p, key, err := m.Predict(x)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d", i)
			}
			keys[i], scores.Values[i] = key, p
		}
		out, err := f.With(m.predictedLabel, dataset.KeyColumn{Keys: keys, Vocabulary: m.Vocabulary})
		if err != nil {
			return nil, err
		}
		return out.With(m.score, scores)
	}))
}
