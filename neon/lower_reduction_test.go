package neon

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestLowerSum(t *testing.T) {
	graphtest.RunTestGraphFn(t, "sum over named axes", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		x := matrixAB("x", []float32{1, 2, 3, 4, 5, 6})
		overA := Sum(x, "A")  // reduces position 0 -> shape (B:3)
		overB := Sum(x, "B")  // reduces position 1 -> shape (A:2)
		overAll := Sum(x)     // scalar
		comp := must.M1(Lower(g, overA, overB, overAll))
		outputs = []*graph.Node{comp.BackendNode(overA), comp.BackendNode(overB), comp.BackendNode(overAll)}
		return
	}, []any{
		[]float32{5, 7, 9},
		[]float32{6, 15},
		float32(21),
	}, -1)
}

func TestLowerMax(t *testing.T) {
	graphtest.RunTestGraphFn(t, "max over named axes", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		// All-negative values, so the reduction identity never leaks into the result.
		x := matrixAB("x", []float32{-1, -2, -3, -4, -5, -6})
		overA := Max(x, "A")
		overB := Max(x, "B")
		overAll := Max(x)
		comp := must.M1(Lower(g, overA, overB, overAll))
		outputs = []*graph.Node{comp.BackendNode(overA), comp.BackendNode(overB), comp.BackendNode(overAll)}
		return
	}, []any{
		[]float32{-1, -2, -3},
		[]float32{-1, -4},
		float32(-1),
	}, -1)
}

func TestLowerSumMissingAxisFailsLoudly(t *testing.T) {
	g := graph.NewGraph(graphtest.BuildTestBackend(), "sum missing axis")
	x := matrixAB("x", []float32{1, 2, 3, 4, 5, 6})
	_, err := Lower(g, Sum(x, "Z"))
	require.ErrorIs(t, err, ErrAxisLookup)

	g = graph.NewGraph(graphtest.BuildTestBackend(), "max missing axis")
	_, err = Lower(g, Max(x, "Z"))
	require.ErrorIs(t, err, ErrAxisLookup)
}

func TestLowerDotMatMul(t *testing.T) {
	graphtest.RunTestGraphFn(t, "dot with one shared axis", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		x := Constant("x", MakeAxes(MakeAxis("I", 2), MakeAxis("K", 3)), []float32{1, 2, 3, 4, 5, 6})
		y := Constant("y", MakeAxes(MakeAxis("K", 3), MakeAxis("J", 2)), []float32{1, 2, 3, 4, 5, 6})
		dot := Dot(x, y)
		comp := must.M1(Lower(g, dot))
		outputs = []*graph.Node{comp.BackendNode(dot)}
		return
	}, []any{
		[][]float32{{22, 28}, {49, 64}},
	}, -1)
}

func TestLowerDotOuterProduct(t *testing.T) {
	graphtest.RunTestGraphFn(t, "dot with zero shared axes", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		x := Constant("x", MakeAxes(MakeAxis("I", 2)), []float32{1, 2})
		y := Constant("y", MakeAxes(MakeAxis("J", 3)), []float32{1, 2, 3})
		dot := Dot(x, y)
		comp := must.M1(Lower(g, dot))
		outputs = []*graph.Node{comp.BackendNode(dot)}
		return
	}, []any{
		// Outer product: result shape is the concatenation of both operand shapes.
		[][]float32{{1, 2, 3}, {2, 4, 6}},
	}, -1)
}

func TestLowerDotReordersMisalignedOperands(t *testing.T) {
	graphtest.RunTestGraphFn(t, "dot with misaligned shared axis", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		// x carries the shared axis K leading, so x's trailing axis does not
		// align with y's leading axis and both get transposed into
		// contiguous reduction order first. Data is laid out so that the
		// result matches the matmul of x transposed.
		x := Constant("x", MakeAxes(MakeAxis("K", 3), MakeAxis("I", 2)), []float32{1, 4, 2, 5, 3, 6})
		y := Constant("y", MakeAxes(MakeAxis("K", 3), MakeAxis("J", 2)), []float32{1, 2, 3, 4, 5, 6})
		dot := Dot(x, y)
		comp := must.M1(Lower(g, dot))
		outputs = []*graph.Node{comp.BackendNode(dot)}
		return
	}, []any{
		[][]float32{{22, 28}, {49, 64}},
	}, -1)
}

func TestLowerDotResultShape(t *testing.T) {
	g := graph.NewGraph(graphtest.BuildTestBackend(), "dot result shape")
	x := Constant("x", MakeAxes(MakeAxis("I", 2), MakeAxis("K", 3), MakeAxis("L", 4)),
		make([]float32, 24))
	y := Constant("y", MakeAxes(MakeAxis("K", 3), MakeAxis("L", 4), MakeAxis("J", 5)),
		make([]float32, 60))
	// Two shared axes: contraction arity 2.
	dot := Dot(x, y)
	require.Equal(t, MakeAxes(MakeAxis("I", 2), MakeAxis("J", 5)), dot.ResultAxes())

	comp, err := Lower(g, dot)
	require.NoError(t, err)
	require.Equal(t, []int{2, 5}, comp.BackendNode(dot).Shape().Dimensions)
}

func TestLowerTensorSize(t *testing.T) {
	graphtest.RunTestGraphFn(t, "tensor size constants", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		x := matrixAB("x", []float32{1, 2, 3, 4, 5, 6})
		all := TensorSize(x)
		overB := TensorSize(x, "B")
		comp := must.M1(Lower(g, all, overB))
		outputs = []*graph.Node{comp.BackendNode(all), comp.BackendNode(overB)}
		return
	}, []any{
		float32(6),
		float32(3),
	}, -1)
}
