package dataset

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrColumnNotFound is returned when a stage or evaluator names a column the
// frame does not have.
var ErrColumnNotFound = errors.New("column not found")

// ErrColumnType is returned when a column exists but has the wrong kind.
var ErrColumnType = errors.New("column has the wrong type")

// Field is one entry of a Schema.
type Field struct {
	Name string
	Type ColumnType
}

// Schema is the ordered list of columns a frame has (or will have).
type Schema []Field

// Lookup returns the type of the named column.
func (s Schema) Lookup(name string) (ColumnType, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Type, true
		}
	}
	return ColumnType{}, false
}

// Require returns the type of the named column and checks its kind.
func (s Schema) Require(name string, kind Kind) (ColumnType, error) {
	t, ok := s.Lookup(name)
	if !ok {
		return ColumnType{}, errors.Wrapf(ErrColumnNotFound, "%q", name)
	}
	if t.Kind != kind {
		return ColumnType{}, errors.Wrapf(ErrColumnType, "%q: want %s, got %s", name, kind, t)
	}
	return t, nil
}

// With returns a copy of s with name set to t. An existing column keeps its
// position.
func (s Schema) With(name string, t ColumnType) Schema {
	out := make(Schema, 0, len(s)+1)
	replaced := false
	for _, f := range s {
		if f.Name == name {
			f.Type = t
			replaced = true
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, Field{Name: name, Type: t})
	}
	return out
}

// Without returns a copy of s without the named column.
func (s Schema) Without(name string) Schema {
	out := make(Schema, 0, len(s))
	for _, f := range s {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
