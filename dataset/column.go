package dataset

import (
	"fmt"

	"github.com/dcshock/imgpipe/resource"
)

// Kind is the element type of a column.
type Kind int

const (
	KindImage Kind = iota + 1
	KindText
	KindKey
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindText:
		return "text"
	case KindKey:
		return "key"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ColumnType is the static type of a column. Size is the vector length for
// vector columns and the vocabulary size for key columns; 0 means unknown.
type ColumnType struct {
	Kind Kind
	Size int
}

func (t ColumnType) String() string {
	if t.Size > 0 {
		return fmt.Sprintf("%s[%d]", t.Kind, t.Size)
	}
	return t.Kind.String()
}

// Column is one named column of a Frame.
type Column interface {
	Type() ColumnType
	Len() int
}

// ImageColumn holds one image handle per row.
type ImageColumn []*resource.Image

func (c ImageColumn) Type() ColumnType { return ColumnType{Kind: KindImage} }
func (c ImageColumn) Len() int         { return len(c) }

// TextColumn holds one string per row.
type TextColumn []string

func (c TextColumn) Type() ColumnType { return ColumnType{Kind: KindText} }
func (c TextColumn) Len() int         { return len(c) }

// KeyColumn holds 1-based indexes into Vocabulary; 0 marks a missing value.
type KeyColumn struct {
	Keys       []uint32
	Vocabulary []string
}

func (c KeyColumn) Type() ColumnType { return ColumnType{Kind: KindKey, Size: len(c.Vocabulary)} }
func (c KeyColumn) Len() int         { return len(c.Keys) }

// Value returns the vocabulary entry for row i, or false for a missing key.
func (c KeyColumn) Value(i int) (string, bool) {
	k := c.Keys[i]
	if k == 0 || int(k) > len(c.Vocabulary) {
		return "", false
	}
	return c.Vocabulary[k-1], true
}

// VectorColumn holds a fixed-size float vector per row.
type VectorColumn struct {
	Size   int
	Values [][]float64
}

func (c VectorColumn) Type() ColumnType { return ColumnType{Kind: KindVector, Size: c.Size} }
func (c VectorColumn) Len() int         { return len(c.Values) }
