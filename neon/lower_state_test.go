package neon

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowerSequentialAliasesLastChild(t *testing.T) {
	g := graph.NewGraph(graphtest.BuildTestBackend(), "sequential alias")
	a := matrixAB("a", []float32{1, 2, 3, 4, 5, 6})
	b := matrixAB("b", []float32{6, 5, 4, 3, 2, 1})
	sum := Add(a, b)
	seq := Sequential(Negative(a), sum)

	comp, err := Lower(g, seq)
	require.NoError(t, err)
	assert.Same(t, comp.BackendNode(sum), comp.BackendNode(seq))
}

func TestLowerSequentialValue(t *testing.T) {
	graphtest.RunTestGraphFn(t, "sequential yields last child", func(g *graph.Graph) (inputs, outputs []*graph.Node) {
		a := matrixAB("a", []float32{1, 2, 3, 4, 5, 6})
		b := matrixAB("b", []float32{6, 5, 4, 3, 2, 1})
		seq := Sequential(Negative(a), Add(a, b))
		comp := must.M1(Lower(g, seq))
		outputs = []*graph.Node{comp.BackendNode(seq)}
		return
	}, []any{
		[][]float32{{7, 7, 7}, {7, 7, 7}},
	}, -1)
}

func TestLowerAssignRecordsWrite(t *testing.T) {
	g := graph.NewGraph(graphtest.BuildTestBackend(), "assign records write")
	axes := MakeAxes(MakeAxis("A", 2), MakeAxis("B", 3))
	v := Variable("weights", axes)
	delta := matrixAB("delta", []float32{1, 2, 3, 4, 5, 6})
	update := Add(ValueOf(v), delta)
	assign := Assign(v, update)

	comp, err := Lower(g, Sequential(Parallel(assign)))
	require.NoError(t, err)

	write, ok := comp.VariableWrite(v)
	require.True(t, ok)
	assert.Equal(t, "root/seq0/par0", write.Scope)
	assert.Same(t, comp.BackendNode(update), write.Value)
	assert.Len(t, comp.VariableWrites(), 1)
}

func TestLowerAssignLeftHandSideIsNotRead(t *testing.T) {
	g := graph.NewGraph(graphtest.BuildTestBackend(), "assign lhs not read")
	v := Variable("state", MakeAxes(MakeAxis("A", 2)))
	value := Constant("value", MakeAxes(MakeAxis("A", 2)), []float32{1, 2})

	// The left-hand side never reaches the backend: only the written value
	// does. Lowering a bare variable directly is the error case covered by
	// TestLowerVariableVisitedDirectly.
	comp, err := Lower(g, Parallel(Assign(v, value)))
	require.NoError(t, err)
	assert.Nil(t, comp.BackendNode(v))
}

func TestLowerDuplicateAssignFails(t *testing.T) {
	g := graph.NewGraph(graphtest.BuildTestBackend(), "duplicate assign")
	v := Variable("state", MakeAxes(MakeAxis("A", 2)))
	one := Constant("one", MakeAxes(MakeAxis("A", 2)), []float32{1, 1})
	two := Constant("two", MakeAxes(MakeAxis("A", 2)), []float32{2, 2})

	_, err := Lower(g, Sequential(Parallel(Assign(v, one)), Parallel(Assign(v, two))))
	require.ErrorIs(t, err, ErrDuplicateVariableWrite)
}

func TestLowerParallelRejectsValueBranches(t *testing.T) {
	g := graph.NewGraph(graphtest.BuildTestBackend(), "parallel value branch")
	x := Constant("x", MakeAxes(MakeAxis("A", 2)), []float32{1, 2})

	_, err := Lower(g, Parallel(Negative(x)))
	require.ErrorIs(t, err, ErrInvalidTraversal)
}

func TestLowerNilGraph(t *testing.T) {
	x := Constant("x", MakeAxes(MakeAxis("A", 2)), []float32{1, 2})
	_, err := Lower(nil, x)
	require.Error(t, err)
}
