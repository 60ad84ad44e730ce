package neon

// The lowering pass: a single dependency-ordered traversal that maps each
// op-graph node to backend primitive nodes, threading the backend node table
// keyed by tensor identity. Operands are lowered before their consumers;
// re-visiting a tensor identity already in the table is a guarded no-op, so a
// node shared through multiple DAG paths is materialized exactly once.
//
// The per-kind behavior follows the dispatch table of the neon transformer:
// arithmetic and comparisons map to the matching backend primitives,
// reductions to axis-position reductions, Dot to a contraction with operands
// transposed into contiguous reduction-axis order when needed, and the
// composition kinds (Sequential/Parallel/Assign) to traversal-ordering
// contracts plus the variable write table, with no backend node of their own.

import (
	"fmt"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// workingDType is the element type of every lowered tensor. Comparisons
// produce booleans in the backend and are immediately converted back to it.
const workingDType = dtypes.Float32

// lowerNode lowers op and, first, everything it depends on. Children are
// visited in argument-list order; Parallel visits its control-dependency set
// instead.
func (comp *Computation) lowerNode(op *Op) {
	if comp.lowered.Has(op.id) {
		return
	}
	comp.lowered.Insert(op.id)

	switch op.kind {
	case KindVariable:
		panic(errors.Wrapf(ErrInvalidTraversal,
			"assignable tensor %s visited directly; reads must go through ValueOf and writes through Assign", op))

	case KindSequential:
		// Children are evaluated in order; the composite's meaningful result
		// is its last child. Nothing is emitted for the composite itself.
		for _, child := range op.args {
			comp.lowerNode(child)
		}
		comp.setRank(op)
		last := op.args[len(op.args)-1]
		if node, found := comp.handles[last.tid]; found {
			comp.handles[op.tid] = node
		}
		return

	case KindParallel:
		// Branch order is unspecified: the branches are independent writes.
		for _, child := range op.controlDeps {
			if child.kind != KindAssign {
				panic(errors.Wrapf(ErrInvalidTraversal,
					"parallel branch %s of %s is not an Assign", child, op))
			}
			comp.lowerNode(child)
		}
		comp.setRank(op)
		return

	case KindAssign:
		// Only the right-hand side is a value dependency: the left-hand side
		// resolves to a tensor identity without being visited.
		comp.lowerNode(op.args[1])
		comp.setRank(op)
		comp.recordWrite(op)
		return
	}

	for _, arg := range op.args {
		comp.lowerNode(arg)
	}
	comp.setRank(op)
	comp.emit(op)
}

// setRank records the node's distance from the leaves, checking that every
// operand was ranked (hence processed) first.
func (comp *Computation) setRank(op *Op) {
	rank := 0
	for _, arg := range op.args {
		argRank, found := comp.ranks[arg.id]
		if !found && arg.kind != KindVariable {
			panic(errors.Wrapf(ErrInvalidTraversal,
				"operand %s of %s was not processed before its consumer", arg, op))
		}
		if argRank >= rank {
			rank = argRank + 1
		}
	}
	comp.ranks[op.id] = rank
}

// operand returns the backend node of the idx-th operand, which must already
// be materialized.
func (comp *Computation) operand(op *Op, idx int) *graph.Node {
	arg := op.args[idx]
	node, found := comp.handles[arg.tid]
	if !found {
		panic(errors.Wrapf(ErrInvalidTraversal,
			"operand %s of %s has no backend node yet: dependency-ordering bug", arg, op))
	}
	return node
}

// emit dispatches on the operation kind and records the resulting backend
// node under the op's tensor identity.
func (comp *Computation) emit(op *Op) {
	if _, found := comp.handles[op.tid]; found {
		// The tensor identity was already materialized, possibly through an
		// aliasing node. Guarded no-op.
		return
	}

	var node *graph.Node
	switch op.kind {
	case KindTensorValue:
		node = comp.lowerTensorValue(op)
	case KindAdd:
		node = graph.Add(comp.operand(op, 0), comp.operand(op, 1))
	case KindSubtract:
		node = graph.Sub(comp.operand(op, 0), comp.operand(op, 1))
	case KindMultiply:
		node = graph.Mul(comp.operand(op, 0), comp.operand(op, 1))
	case KindDivide:
		node = graph.Div(comp.operand(op, 0), comp.operand(op, 1))
	case KindMaximum:
		node = graph.Max(comp.operand(op, 0), comp.operand(op, 1))
	case KindMinimum:
		node = graph.Min(comp.operand(op, 0), comp.operand(op, 1))
	case KindGreater:
		node = graph.ConvertDType(
			graph.GreaterThan(comp.operand(op, 0), comp.operand(op, 1)), workingDType)
	case KindLess:
		node = graph.ConvertDType(
			graph.LessThan(comp.operand(op, 0), comp.operand(op, 1)), workingDType)
	case KindNegative:
		node = graph.Neg(comp.operand(op, 0))
	case KindReciprocal:
		node = comp.lowerReciprocal(op)
	case KindLog:
		node = graph.Log(comp.operand(op, 0))
	case KindExp:
		node = graph.Exp(comp.operand(op, 0))
	case KindSum:
		node = graph.ReduceSum(comp.operand(op, 0), comp.reductionPositions(op)...)
	case KindMax:
		node = graph.ReduceMax(comp.operand(op, 0), comp.reductionPositions(op)...)
	case KindDot:
		node = comp.lowerDot(op)
	case KindBroadcast:
		node = comp.lowerBroadcast(op)
	case KindReorderAxes:
		node = comp.lowerReorderAxes(op)
	case KindOneHot:
		node = comp.lowerOneHot(op)
	case KindTensorSize:
		// Compile-time constant: the number of elements spanned by the
		// declared reduction axes.
		node = graph.Scalar(comp.graph, workingDType, float32(op.reductionAxes.Size()))
	case KindMapRoles:
		// Pure axis relabeling: alias the operand's backend node.
		node = comp.operand(op, 0)
	default:
		panic(errors.Wrapf(ErrUnsupportedOperation,
			"no lowering dispatch for %s", op))
	}

	comp.handles[op.tid] = node
	if klog.V(2).Enabled() {
		klog.Infof("lowered %s -> backend %s", op, node.Shape())
	}
}

// reductionPositions resolves the op's declared reduction axes to numeric
// positions in its operand's axis order. A declared axis absent from the
// operand aborts the pass.
func (comp *Computation) reductionPositions(op *Op) []int {
	positions, err := reductionAxisPositions(op)
	if err != nil {
		panic(err)
	}
	return positions
}

// parameterFor materializes a backend parameter representing the given leaf.
// The parameter name carries the tensor identity, which keeps names unique
// within one backend graph while the table keeps one node per identity.
func (comp *Computation) parameterFor(arg *Op) *graph.Node {
	name := fmt.Sprintf("%s#%d", arg.name, arg.tid)
	return graph.Parameter(comp.graph, name, shapes.Make(workingDType, arg.axes.Lengths()...))
}

// lowerTensorValue materializes a leaf: constants become backend constants
// built from the flat row-major data, everything else becomes a parameter
// keyed by the tensor identity.
func (comp *Computation) lowerTensorValue(op *Op) *graph.Node {
	if op.isConstant {
		tensor := tensors.FromFlatDataAndDimensions(op.constData, op.axes.Lengths()...)
		return graph.Const(comp.graph, tensor)
	}
	return comp.parameterFor(op)
}

// lowerReciprocal emits 1/x as a constant-ones tensor of the operand's shape
// divided by the operand.
func (comp *Computation) lowerReciprocal(op *Op) *graph.Node {
	x := comp.operand(op, 0)
	ones := graph.Ones(comp.graph, shapes.Make(workingDType, op.args[0].axes.Lengths()...))
	return graph.Div(ones, x)
}

// lowerBroadcast expands the operand with the axis positions present in the
// result but absent from the operand, then broadcasts to the result shape.
// An operand not yet materialized is represented by a fresh backend
// parameter.
func (comp *Computation) lowerBroadcast(op *Op) *graph.Node {
	arg := op.args[0]
	x, found := comp.handles[arg.tid]
	if !found {
		x = comp.parameterFor(arg)
		comp.handles[arg.tid] = x
	}

	broadcastAxes := make([]int, 0, len(op.axes)-len(arg.axes))
	for pos, axis := range op.axes {
		if !arg.axes.Has(axis.Name) {
			broadcastAxes = append(broadcastAxes, pos)
		}
	}
	x = graph.ExpandAxes(x, broadcastAxes...)
	return graph.BroadcastToDims(x, op.axes.Lengths()...)
}

// lowerReorderAxes emits the transposition mapping the result-axis order onto
// the operand-axis order.
func (comp *Computation) lowerReorderAxes(op *Op) *graph.Node {
	arg := op.args[0]
	order, err := axisOrderForReshape(arg.axes.Names(), op.axes.Names())
	if err != nil {
		panic(errors.WithMessagef(err, "while lowering %s", op))
	}
	node := graph.TransposeAllAxes(comp.operand(op, 0), order...)

	// The backend shape must agree with the named-axis bookkeeping.
	want := shapeFromAxisOrder(order, arg.axes.Lengths())
	if !slices.Equal(node.Shape().Dimensions, want) {
		panic(errors.Wrapf(ErrInvalidTraversal,
			"reordered backend shape %v disagrees with axes %s of %s", node.Shape().Dimensions, op.axes, op))
	}
	return node
}

// lowerDot emits the contraction over the operands' shared axes. When the
// trailing axis of the left operand does not already align with the leading
// axis of the right operand, both operands are first transposed so that the
// reduction axes are contiguous and correctly positioned. Zero shared axes
// produce a zero-arity contraction: an outer product.
func (comp *Computation) lowerDot(op *Op) *graph.Node {
	x, y := op.args[0], op.args[1]
	lhs, rhs := comp.operand(op, 0), comp.operand(op, 1)
	k := len(op.reductionAxes)

	misaligned := k > 0 && x.axes.Rank() > 0 && y.axes.Rank() > 0 &&
		x.axes[x.axes.Rank()-1].Name != y.axes[0].Name
	if misaligned {
		lhsTarget := op.xOutAxes.Concat(op.reductionAxes)
		lhsOrder, err := axisOrderForReshape(x.axes.Names(), lhsTarget.Names())
		if err != nil {
			panic(errors.WithMessagef(err, "while lowering %s", op))
		}
		lhs = graph.TransposeAllAxes(lhs, lhsOrder...)

		rhsTarget := op.reductionAxes.Concat(op.yOutAxes)
		rhsOrder, err := axisOrderForReshape(y.axes.Names(), rhsTarget.Names())
		if err != nil {
			panic(errors.WithMessagef(err, "while lowering %s", op))
		}
		rhs = graph.TransposeAllAxes(rhs, rhsOrder...)
	}

	contracting := make([][2]int, k)
	for i := range k {
		if misaligned {
			// Reduction axes are now trailing on the lhs, leading on the rhs.
			contracting[i] = [2]int{x.axes.Rank() - k + i, i}
		} else {
			name := op.reductionAxes[i].Name
			contracting[i] = [2]int{x.axes.Index(name), y.axes.Index(name)}
		}
	}
	return graph.EinsumAxes(lhs, rhs, contracting, nil)
}

// lowerOneHot emits the one-hot expansion with the hot axis moved to its
// declared position in the result axis order.
func (comp *Computation) lowerOneHot(op *Op) *graph.Node {
	position := op.axes.Index(op.oneHotAxis.Name)
	if position < 0 {
		panic(errors.Wrapf(ErrAxisLookup,
			"one-hot axis %q not found in result axes %s of %s", op.oneHotAxis.Name, op.axes, op))
	}

	indices := graph.ConvertDType(comp.operand(op, 0), dtypes.Int32)
	node := graph.OneHot(indices, op.oneHotAxis.Length, workingDType)

	rank := op.axes.Rank()
	if position != rank-1 {
		// OneHot grows the hot axis at the end; move it into position.
		permutation := make([]int, rank)
		for i := range permutation {
			switch {
			case i < position:
				permutation[i] = i
			case i == position:
				permutation[i] = rank - 1
			default:
				permutation[i] = i - 1
			}
		}
		node = graph.TransposeAllAxes(node, permutation...)
	}
	return node
}

// recordWrite resolves the Assign's left-hand side to its tensor identity and
// records the (scope, value) pair. A second write to the same identity is a
// fatal consistency violation: there are no merge semantics.
func (comp *Computation) recordWrite(op *Op) {
	variable := op.args[0]
	value, found := comp.handles[op.args[1].tid]
	if !found {
		panic(errors.Wrapf(ErrInvalidTraversal,
			"assigned value %s of %s has no backend node yet", op.args[1], op))
	}
	if previous, written := comp.writes[variable.tid]; written {
		panic(errors.Wrapf(ErrDuplicateVariableWrite,
			"%s already written under scope %q, second write by %s under scope %q",
			variable, previous.Scope, op, comp.scopes[op.id]))
	}
	comp.writes[variable.tid] = VariableWrite{
		Scope: comp.scopes[op.id],
		Value: value,
	}
}
