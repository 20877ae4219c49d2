// Package evaluation computes classification metrics over a dataset view.
package evaluation

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/dcshock/imgpipe/dataset"
)

// minProbability clamps the score of the true class before taking its log.
const minProbability = 1e-15

// Options is optional.
type Options struct {
	ScoreColumn string // default "Score"
	TopK        int    // 0 leaves TopKAccuracy unset
	Logger      *zap.Logger
}

// Metrics are the multiclass classification metrics of one evaluation.
type Metrics struct {
	Classes []string
	Rows    int // labelled rows evaluated

	MicroAccuracy    float64
	MacroAccuracy    float64
	LogLoss          float64
	LogLossReduction float64
	TopK             int
	TopKAccuracy     float64
	PerClassLogLoss  []float64

	// ConfusionMatrix counts rows by actual class (row) and predicted class
	// (column), in vocabulary order.
	ConfusionMatrix *mat.Dense
}

// Multiclass materializes view and evaluates predictedColumn against
// labelColumn. Both are key columns over the same vocabulary. Rows whose
// label is missing are skipped.
//
// A failure to materialize the view is returned as *EvaluationError with
// the original error as its cause.
func Multiclass(ctx context.Context, view dataset.View, labelColumn, predictedColumn string, opts *Options) (*Metrics, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.ScoreColumn == "" {
		o.ScoreColumn = "Score"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	f, err := view.Frame(ctx)
	if err != nil {
		o.Logger.Error("evaluation input failed to materialize", zap.Error(err))
		return nil, &EvaluationError{Cause: err}
	}
	labels, err := f.KeyColumn(labelColumn)
	if err != nil {
		return nil, errors.Wrap(err, "label column")
	}
	predicted, err := f.KeyColumn(predictedColumn)
	if err != nil {
		return nil, errors.Wrap(err, "predicted column")
	}
	scores, err := f.VectorColumn(o.ScoreColumn)
	if err != nil {
		return nil, errors.Wrap(err, "score column")
	}
	k := len(labels.Vocabulary)
	if k == 0 {
		return nil, errors.Newf("label column %q has an empty vocabulary", labelColumn)
	}
	if scores.Size != k {
		return nil, errors.Newf("score column %q has %d classes, labels have %d", o.ScoreColumn, scores.Size, k)
	}

	m := &Metrics{
		Classes:         append([]string(nil), labels.Vocabulary...),
		TopK:            o.TopK,
		PerClassLogLoss: make([]float64, k),
		ConfusionMatrix: mat.NewDense(k, k, nil),
	}
	counts := make([]float64, k)
	correct := make([]float64, k)
	var hits, topHits, logLoss float64
	for i, key := range labels.Keys {
		if key == 0 || int(key) > k {
			continue
		}
		y := int(key) - 1
		counts[y]++
		m.Rows++

		p := scores.Values[i]
		ll := -math.Log(math.Max(p[y], minProbability))
		logLoss += ll
		m.PerClassLogLoss[y] += ll

		if pk := predicted.Keys[i]; pk != 0 && int(pk) <= k {
			m.ConfusionMatrix.Set(y, int(pk)-1, m.ConfusionMatrix.At(y, int(pk)-1)+1)
			if int(pk)-1 == y {
				hits++
				correct[y]++
			}
		}
		if o.TopK > 0 && rank(p, y) < o.TopK {
			topHits++
		}
	}
	if m.Rows == 0 {
		return nil, errors.Newf("label column %q has no labelled rows", labelColumn)
	}

	n := float64(m.Rows)
	m.MicroAccuracy = hits / n
	m.LogLoss = logLoss / n
	if o.TopK > 0 {
		m.TopKAccuracy = topHits / n
	}
	var present float64
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		present++
		m.MacroAccuracy += correct[c] / counts[c]
		m.PerClassLogLoss[c] /= counts[c]
	}
	m.MacroAccuracy /= present

	prior := make([]float64, k)
	floats.ScaleTo(prior, 1/n, counts)
	if priorLogLoss := stat.Entropy(prior); priorLogLoss > 0 {
		m.LogLossReduction = (priorLogLoss - m.LogLoss) / priorLogLoss
	}

	o.Logger.Debug("evaluated multiclass predictions",
		zap.Int("rows", m.Rows),
		zap.Int("classes", k),
		zap.Float64("micro_accuracy", m.MicroAccuracy),
		zap.Float64("log_loss", m.LogLoss))
	return m, nil
}

// rank returns how many classes scored strictly higher than class y.
func rank(p []float64, y int) int {
	r := 0
	for c, v := range p {
		if c != y && v > p[y] {
			r++
		}
	}
	return r
}
