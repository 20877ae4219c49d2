package dataset

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/resource"
)

// Column names of a view built from records.
const (
	SourceImageColumn = "SourceImage"
	LabelValueColumn  = "LabelValue"
)

// Record is a caller-owned input row. The caller keeps ownership of Image.
type Record struct {
	Image *resource.Image
	Label string
}

// OutputRecord holds the derived values of one output row. It never refers
// to an image.
type OutputRecord struct {
	PredictedLabelValue string
	Score               []float64
}

// View is a frame that is materialized on demand. Materializing a view may do
// real work (running a fitted pipeline), so it can fail.
type View interface {
	Frame(ctx context.Context) (*Frame, error)
	Schema() Schema
}

type recordsView struct {
	records []Record
}

// FromRecords returns a view over caller-owned records with the columns
// SourceImage and LabelValue. Every materialization yields a fresh frame over
// the same image handles.
func FromRecords(records []Record) View {
	return &recordsView{records: append([]Record(nil), records...)}
}

func (v *recordsView) Schema() Schema {
	return Schema{
		{Name: SourceImageColumn, Type: ColumnType{Kind: KindImage}},
		{Name: LabelValueColumn, Type: ColumnType{Kind: KindText}},
	}
}

func (v *recordsView) Frame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	imgs := make(ImageColumn, len(v.records))
	labels := make(TextColumn, len(v.records))
	for i, r := range v.records {
		if r.Image == nil {
			return nil, errors.Newf("record %d has no image", i)
		}
		imgs[i] = r.Image
		labels[i] = r.Label
	}
	f, err := NewFrame().With(SourceImageColumn, imgs)
	if err != nil {
		return nil, err
	}
	return f.With(LabelValueColumn, labels)
}

type frameView struct {
	frame *Frame
}

// FromFrame returns a view that always materializes to f.
func FromFrame(f *Frame) View {
	return frameView{frame: f}
}

func (v frameView) Frame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.frame, nil
}

func (v frameView) Schema() Schema { return v.frame.Schema() }

// Collect materializes view and copies the predicted label and score of every
// row into output records.
func Collect(ctx context.Context, view View, predictedColumn, scoreColumn string) ([]OutputRecord, error) {
	f, err := view.Frame(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "collect")
	}
	labels, err := f.TextColumn(predictedColumn)
	if err != nil {
		return nil, errors.Wrap(err, "collect")
	}
	scores, err := f.VectorColumn(scoreColumn)
	if err != nil {
		return nil, errors.Wrap(err, "collect")
	}
	out := make([]OutputRecord, f.Rows())
	for i := range out {
		out[i] = OutputRecord{
			PredictedLabelValue: labels[i],
			Score:               append([]float64(nil), scores.Values[i]...),
		}
	}
	return out, nil
}
