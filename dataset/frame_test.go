package dataset

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/imgpipe/resource"
)

func img(t *testing.T, size int) *resource.Image {
	t.Helper()
	i, err := resource.New(size, size, make([]byte, size*size*resource.BytesPerPixel))
	require.NoError(t, err)
	return i
}

func TestFrame_WithKeepsReceiver(t *testing.T) {
	f, err := NewFrame().With("a", TextColumn{"x", "y"})
	require.NoError(t, err)
	g, err := f.With("b", VectorColumn{Size: 1, Values: [][]float64{{1}, {2}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, f.Names())
	assert.Equal(t, []string{"a", "b"}, g.Names())
	assert.Equal(t, 2, g.Rows())
}

func TestFrame_WithRejectsRowMismatch(t *testing.T) {
	f, err := NewFrame().With("a", TextColumn{"x", "y"})
	require.NoError(t, err)
	_, err = f.With("b", TextColumn{"x"})
	assert.Error(t, err)

	// Replacing the only column may change the row count.
	g, err := f.With("a", TextColumn{"x"})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Rows())
}

func TestFrame_ReplaceKeepsPosition(t *testing.T) {
	f, err := NewFrame().With("a", TextColumn{"x"})
	require.NoError(t, err)
	f, err = f.With("b", TextColumn{"y"})
	require.NoError(t, err)
	f, err = f.With("a", KeyColumn{Keys: []uint32{1}, Vocabulary: []string{"x"}})
	require.NoError(t, err)

	assert.Equal(t, Schema{
		{Name: "a", Type: ColumnType{Kind: KindKey, Size: 1}},
		{Name: "b", Type: ColumnType{Kind: KindText}},
	}, f.Schema())
}

func TestFrame_TypedGetters(t *testing.T) {
	f, err := NewFrame().With("a", TextColumn{"x"})
	require.NoError(t, err)

	_, err = f.ImageColumn("missing")
	assert.True(t, errors.Is(err, ErrColumnNotFound))

	_, err = f.VectorColumn("a")
	assert.True(t, errors.Is(err, ErrColumnType))

	tc, err := f.TextColumn("a")
	require.NoError(t, err)
	assert.Equal(t, TextColumn{"x"}, tc)
}

func TestFrame_Carrier(t *testing.T) {
	a, b := img(t, 2), img(t, 2)
	f, err := NewFrame().With("src", ImageColumn{a})
	require.NoError(t, err)
	f, err = f.With("label", TextColumn{"l"})
	require.NoError(t, err)
	g, err := f.With("out", ImageColumn{b})
	require.NoError(t, err)

	assert.Equal(t, []*resource.Image{a, b}, g.Images())
	assert.Equal(t, []*resource.Image{b}, g.Produced(f))

	lent, err := resource.Lend(g)
	require.NoError(t, err)
	for _, v := range lent.Images() {
		assert.True(t, v.Borrowed())
	}
	// Lending never touches the source frame.
	assert.False(t, g.Images()[0].Borrowed())

	stripped := g.Strip().(*Frame)
	assert.Equal(t, []string{"label"}, stripped.Names())
	assert.Equal(t, 1, stripped.Rows())
	assert.Empty(t, stripped.Images())
}

func TestFrame_ProducedInPlace(t *testing.T) {
	a, b, c := img(t, 2), img(t, 2), img(t, 2)
	f, err := NewFrame().With("src", ImageColumn{a, b})
	require.NoError(t, err)
	g, err := f.With("src", ImageColumn{a, c})
	require.NoError(t, err)

	assert.Equal(t, []*resource.Image{c}, g.Produced(f))
	assert.Empty(t, f.Produced(f))
}

func TestFrame_MapError(t *testing.T) {
	a := img(t, 2)
	require.NoError(t, a.Dispose())
	f, err := NewFrame().With("src", ImageColumn{a})
	require.NoError(t, err)

	_, err = resource.Lend(f)
	assert.True(t, resource.IsUseAfterDispose(err))
	assert.Contains(t, err.Error(), `column "src" row 0`)
}

func TestKeyColumn_Value(t *testing.T) {
	c := KeyColumn{Keys: []uint32{2, 0, 9}, Vocabulary: []string{"a", "b"}}
	v, ok := c.Value(0)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = c.Value(1)
	assert.False(t, ok)
	_, ok = c.Value(2)
	assert.False(t, ok)
}

func TestSchema(t *testing.T) {
	s := Schema{{Name: "a", Type: ColumnType{Kind: KindText}}}
	s = s.With("v", ColumnType{Kind: KindVector, Size: 12})

	ct, err := s.Require("v", KindVector)
	require.NoError(t, err)
	assert.Equal(t, 12, ct.Size)

	_, err = s.Require("a", KindKey)
	assert.True(t, errors.Is(err, ErrColumnType))
	_, err = s.Require("zz", KindKey)
	assert.True(t, errors.Is(err, ErrColumnNotFound))

	assert.Equal(t, "{a:text, v:vector[12]}", s.String())
	assert.Equal(t, "{v:vector[12]}", s.Without("a").String())
}
