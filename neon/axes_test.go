package neon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxesBasics(t *testing.T) {
	axes := MakeAxes(MakeAxis("N", 8), MakeAxis("C", 3), MakeAxis("H", 32))
	assert.Equal(t, []string{"N", "C", "H"}, axes.Names())
	assert.Equal(t, []int{8, 3, 32}, axes.Lengths())
	assert.Equal(t, 3, axes.Rank())
	assert.Equal(t, 8*3*32, axes.Size())
	assert.Equal(t, 1, axes.Index("C"))
	assert.Equal(t, -1, axes.Index("W"))
	assert.True(t, axes.Has("H"))
	assert.False(t, axes.Has("W"))
	assert.Equal(t, "(N:8, C:3, H:32)", axes.String())

	scalar := MakeAxes()
	assert.Equal(t, 0, scalar.Rank())
	assert.Equal(t, 1, scalar.Size())

	assert.Panics(t, func() { MakeAxes(MakeAxis("N", 2), MakeAxis("N", 3)) })
	assert.Panics(t, func() { MakeAxes(MakeAxis("", 2)) })
}

func TestAxesSetAlgebra(t *testing.T) {
	nc := MakeAxes(MakeAxis("N", 8), MakeAxis("C", 3))
	ch := MakeAxes(MakeAxis("C", 3), MakeAxis("H", 32))

	assert.Equal(t, MakeAxes(MakeAxis("N", 8)), nc.Sub(ch))
	assert.Equal(t, MakeAxes(MakeAxis("C", 3)), nc.Intersect(ch))
	assert.Equal(t,
		MakeAxes(MakeAxis("N", 8), MakeAxis("C", 3), MakeAxis("H", 32)),
		nc.Concat(MakeAxes(MakeAxis("H", 32))))
	assert.Panics(t, func() { nc.Concat(ch) }) // repeated "C"

	assert.True(t, nc.Equal(MakeAxes(MakeAxis("N", 8), MakeAxis("C", 3))))
	assert.False(t, nc.Equal(ch))
	assert.False(t, nc.Equal(MakeAxes(MakeAxis("N", 8))))
}

func TestReductionAxisPositions(t *testing.T) {
	x := Placeholder("x", MakeAxes(MakeAxis("A", 2), MakeAxis("B", 3), MakeAxis("C", 4)))

	positions, err := reductionAxisPositions(Sum(x, "A"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, positions)

	positions, err = reductionAxisPositions(Sum(x, "C", "A"))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, positions)

	positions, err = reductionAxisPositions(Sum(x))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, positions)

	// A declared reduction axis missing from the operand fails loudly; no
	// silent position-0 default.
	_, err = reductionAxisPositions(Sum(x, "Z"))
	require.ErrorIs(t, err, ErrAxisLookup)
}

func TestCommonAxes(t *testing.T) {
	ab := MakeAxes(MakeAxis("A", 2), MakeAxis("B", 3))
	bc := MakeAxes(MakeAxis("B", 3), MakeAxis("C", 4))
	cd := MakeAxes(MakeAxis("C", 4), MakeAxis("D", 5))

	assert.Equal(t, MakeAxes(MakeAxis("B", 3)), commonAxes(ab, bc))
	// Zero shared axes: outer-product contraction.
	assert.Empty(t, commonAxes(ab, cd))
}

func TestAxisOrderForReshape(t *testing.T) {
	order, err := axisOrderForReshape([]string{"A", "B", "C"}, []string{"C", "A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, order)
	assert.Equal(t, []int{4, 2, 3}, shapeFromAxisOrder(order, []int{2, 3, 4}))

	_, err = axisOrderForReshape([]string{"A", "B"}, []string{"A", "Z"})
	require.ErrorIs(t, err, ErrAxisLookup)
}
