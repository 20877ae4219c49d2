package dataset

import (
	"github.com/cockroachdb/errors"

	"github.com/dcshock/imgpipe/resource"
)

// Frame is an ordered set of named columns with equal row counts.
type Frame struct {
	names []string
	cols  map[string]Column
	rows  int
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{cols: make(map[string]Column)}
}

func (f *Frame) clone() *Frame {
	out := &Frame{names: append([]string(nil), f.names...), cols: make(map[string]Column, len(f.cols)+1), rows: f.rows}
	for k, v := range f.cols {
		out.cols[k] = v
	}
	return out
}

// With returns a new frame with the column set. Replacing a column keeps its
// position; the receiver is not modified.
func (f *Frame) With(name string, col Column) (*Frame, error) {
	if name == "" {
		return nil, errors.New("column name is empty")
	}
	if col == nil {
		return nil, errors.Newf("column %q is nil", name)
	}
	others := len(f.names)
	if _, ok := f.cols[name]; ok {
		others--
	}
	if others > 0 && col.Len() != f.rows {
		return nil, errors.Newf("column %q has %d rows, frame has %d", name, col.Len(), f.rows)
	}
	out := f.clone()
	if _, ok := out.cols[name]; !ok {
		out.names = append(out.names, name)
	}
	out.cols[name] = col
	out.rows = col.Len()
	return out, nil
}

// Without returns a new frame without the named column.
func (f *Frame) Without(name string) *Frame {
	out := f.clone()
	if _, ok := out.cols[name]; !ok {
		return out
	}
	delete(out.cols, name)
	names := out.names[:0]
	for _, n := range out.names {
		if n != name {
			names = append(names, n)
		}
	}
	out.names = names
	if len(out.names) == 0 {
		out.rows = 0
	}
	return out
}

// Column returns the named column.
func (f *Frame) Column(name string) (Column, bool) {
	c, ok := f.cols[name]
	return c, ok
}

func (f *Frame) column(name string, kind Kind) (Column, error) {
	c, ok := f.cols[name]
	if !ok {
		return nil, errors.Wrapf(ErrColumnNotFound, "%q", name)
	}
	if c.Type().Kind != kind {
		return nil, errors.Wrapf(ErrColumnType, "%q: want %s, got %s", name, kind, c.Type())
	}
	return c, nil
}

// ImageColumn returns the named image column.
func (f *Frame) ImageColumn(name string) (ImageColumn, error) {
	c, err := f.column(name, KindImage)
	if err != nil {
		return nil, err
	}
	return c.(ImageColumn), nil
}

// TextColumn returns the named text column.
func (f *Frame) TextColumn(name string) (TextColumn, error) {
	c, err := f.column(name, KindText)
	if err != nil {
		return nil, err
	}
	return c.(TextColumn), nil
}

// KeyColumn returns the named key column.
func (f *Frame) KeyColumn(name string) (KeyColumn, error) {
	c, err := f.column(name, KindKey)
	if err != nil {
		return KeyColumn{}, err
	}
	return c.(KeyColumn), nil
}

// VectorColumn returns the named vector column.
func (f *Frame) VectorColumn(name string) (VectorColumn, error) {
	c, err := f.column(name, KindVector)
	if err != nil {
		return VectorColumn{}, err
	}
	return c.(VectorColumn), nil
}

// Names returns the column names in order.
func (f *Frame) Names() []string { return append([]string(nil), f.names...) }

// Rows returns the row count.
func (f *Frame) Rows() int { return f.rows }

// Schema describes the frame's columns.
func (f *Frame) Schema() Schema {
	s := make(Schema, len(f.names))
	for i, n := range f.names {
		s[i] = Field{Name: n, Type: f.cols[n].Type()}
	}
	return s
}

// Images returns every image handle in the frame, column by column.
func (f *Frame) Images() []*resource.Image {
	var out []*resource.Image
	for _, n := range f.names {
		if ic, ok := f.cols[n].(ImageColumn); ok {
			out = append(out, ic...)
		}
	}
	return out
}

// Map returns a frame whose image columns hold fn(image) for every image.
func (f *Frame) Map(fn func(*resource.Image) (*resource.Image, error)) (resource.Carrier, error) {
	out := f.clone()
	for _, n := range f.names {
		ic, ok := f.cols[n].(ImageColumn)
		if !ok {
			continue
		}
		mapped := make(ImageColumn, len(ic))
		for i, img := range ic {
			m, err := fn(img)
			if err != nil {
				return nil, errors.Wrapf(err, "column %q row %d", n, i)
			}
			mapped[i] = m
		}
		out.cols[n] = mapped
	}
	return out, nil
}

// Produced returns the images in image column slots that input lacks or
// holds a different handle in. A column replaced in place counts row by row.
func (f *Frame) Produced(input resource.Carrier) []*resource.Image {
	in, ok := input.(*Frame)
	if !ok {
		return f.Images()
	}
	var out []*resource.Image
	for _, n := range f.names {
		ic, ok := f.cols[n].(ImageColumn)
		if !ok {
			continue
		}
		prev, _ := in.cols[n].(ImageColumn)
		for i, img := range ic {
			if i < len(prev) && prev[i] == img {
				continue
			}
			out = append(out, img)
		}
	}
	return out
}

// Strip returns the frame without its image columns.
func (f *Frame) Strip() resource.Carrier {
	out := f
	for _, n := range f.names {
		if _, ok := f.cols[n].(ImageColumn); ok {
			out = out.Without(n)
		}
	}
	if out == f {
		out = f.clone()
	}
	return out
}

var _ resource.Carrier = (*Frame)(nil)
