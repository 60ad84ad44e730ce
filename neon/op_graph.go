package neon

// This file defines the symbolic op graph consumed by the lowering pass: the
// operation kinds, the Op node itself and the constructors used to build a
// computation. The graph is a DAG: ops are immutable once constructed and may
// be shared by multiple consumers.
//
// Every op gets a stable NodeID, and every distinct underlying tensor a
// stable TensorID, both assigned at construction time. Ops that alias the
// same storage (e.g. a variable and its read views) share a TensorID; the
// per-computation side tables are keyed on these handles rather than on
// pointer identity.

import (
	"fmt"
	"sync/atomic"

	"github.com/gomlx/exceptions"
)

// NodeID uniquely identifies an op-graph node.
type NodeID int64

// TensorID identifies the underlying tensor storage an op denotes. Multiple
// ops may alias one TensorID.
type TensorID int64

var (
	nextNodeID   atomic.Int64
	nextTensorID atomic.Int64
)

// OpKind enumerates the operation kinds of the op graph.
type OpKind uint8

const (
	KindInvalid OpKind = iota

	// Leaves.
	KindTensorValue // constant or placeholder view of a tensor
	KindVariable    // assignable (stateful) tensor definition

	// Elementwise binary.
	KindAdd
	KindSubtract
	KindMultiply
	KindDivide
	KindMaximum
	KindMinimum
	KindGreater
	KindLess

	// Elementwise unary.
	KindNegative
	KindReciprocal
	KindLog
	KindExp

	// Reductions and shape algebra.
	KindSum
	KindMax
	KindDot
	KindBroadcast
	KindReorderAxes
	KindOneHot
	KindTensorSize
	KindMapRoles

	// Control-flow composition.
	KindSequential
	KindParallel
	KindAssign
)

var opKindNames = map[OpKind]string{
	KindInvalid:     "Invalid",
	KindTensorValue: "TensorValue",
	KindVariable:    "Variable",
	KindAdd:         "Add",
	KindSubtract:    "Subtract",
	KindMultiply:    "Multiply",
	KindDivide:      "Divide",
	KindMaximum:     "Maximum",
	KindMinimum:     "Minimum",
	KindGreater:     "Greater",
	KindLess:        "Less",
	KindNegative:    "Negative",
	KindReciprocal:  "Reciprocal",
	KindLog:         "Log",
	KindExp:         "Exp",
	KindSum:         "Sum",
	KindMax:         "Max",
	KindDot:         "Dot",
	KindBroadcast:   "Broadcast",
	KindReorderAxes: "ReorderAxes",
	KindOneHot:      "OneHot",
	KindTensorSize:  "TensorSize",
	KindMapRoles:    "MapRoles",
	KindSequential:  "Sequential",
	KindParallel:    "Parallel",
	KindAssign:      "Assign",
}

// String implements fmt.Stringer.
func (kind OpKind) String() string {
	if name, found := opKindNames[kind]; found {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", uint8(kind))
}

// Op is one node of the symbolic computation graph.
type Op struct {
	id   NodeID
	tid  TensorID
	kind OpKind
	name string
	axes Axes

	// args is the ordered operand list; controlDeps is only used by Parallel,
	// whose branches are modeled as control dependencies rather than value
	// operands.
	args        []*Op
	controlDeps []*Op

	// Kind-specific fields.
	reductionAxes      Axes      // Sum, Max, Dot, TensorSize
	xOutAxes, yOutAxes Axes      // Dot
	oneHotAxis         Axis      // OneHot
	constData          []float32 // TensorValue (constant)
	isConstant         bool
}

// ID returns the node's stable identity.
func (op *Op) ID() NodeID { return op.id }

// Tensor returns the identity of the tensor storage the op denotes.
func (op *Op) Tensor() TensorID { return op.tid }

// Kind returns the node's operation kind.
func (op *Op) Kind() OpKind { return op.kind }

// Name returns the node's name.
func (op *Op) Name() string { return op.name }

// ResultAxes returns the node's declared result axes.
func (op *Op) ResultAxes() Axes { return op.axes }

// Operands returns the node's ordered operand list.
func (op *Op) Operands() []*Op { return op.args }

// String implements fmt.Stringer, e.g. `Dot_12[Dot](N:8, C:10)`.
func (op *Op) String() string {
	if op == nil {
		return "Op(nil)"
	}
	return fmt.Sprintf("%s[%s]%s", op.name, op.kind, op.axes)
}

// newOp allocates an op with a fresh NodeID and TensorID.
func newOp(kind OpKind, axes Axes, args ...*Op) *Op {
	op := &Op{
		id:   NodeID(nextNodeID.Add(1)),
		tid:  TensorID(nextTensorID.Add(1)),
		kind: kind,
		axes: axes,
		args: args,
	}
	op.name = fmt.Sprintf("%s_%d", kind, op.id)
	return op
}

// Constant creates a constant leaf with the given flat data in row-major
// order over axes.
func Constant(name string, axes Axes, data []float32) *Op {
	if len(data) != axes.Size() {
		exceptions.Panicf("neon.Constant(%q): axes %s hold %d elements, but %d data values were given",
			name, axes, axes.Size(), len(data))
	}
	op := newOp(KindTensorValue, axes)
	op.name = name
	op.constData = data
	op.isConstant = true
	return op
}

// ConstantScalar creates a scalar constant leaf.
func ConstantScalar(name string, value float32) *Op {
	return Constant(name, MakeAxes(), []float32{value})
}

// Placeholder creates a non-constant leaf, lowered to a backend parameter
// keyed by the tensor identity.
func Placeholder(name string, axes Axes) *Op {
	op := newOp(KindTensorValue, axes)
	op.name = name
	return op
}

// Variable creates an assignable (stateful) tensor definition. It must never
// be used directly as an operand of a computing op: read it through ValueOf
// and write it through Assign.
func Variable(name string, axes Axes) *Op {
	op := newOp(KindVariable, axes)
	op.name = name
	return op
}

// ValueOf creates a read view of a variable. The view aliases the variable's
// tensor identity, so all reads of one variable share a single backend node.
func ValueOf(v *Op) *Op {
	if v.kind != KindVariable {
		exceptions.Panicf("neon.ValueOf: %s is not a variable", v)
	}
	op := newOp(KindTensorValue, v.axes)
	op.tid = v.tid
	op.name = v.name
	return op
}

// binaryElementwiseOp validates that both operands carry identical axes and
// allocates the result node. Broadcasting is explicit in this graph, via
// Broadcast.
func binaryElementwiseOp(kind OpKind, x, y *Op) *Op {
	if !x.axes.Equal(y.axes) {
		exceptions.Panicf("neon.%s: operands must have identical axes, got %s and %s",
			kind, x, y)
	}
	return newOp(kind, x.axes, x, y)
}

// Add creates an elementwise addition.
func Add(x, y *Op) *Op { return binaryElementwiseOp(KindAdd, x, y) }

// Subtract creates an elementwise subtraction.
func Subtract(x, y *Op) *Op { return binaryElementwiseOp(KindSubtract, x, y) }

// Multiply creates an elementwise multiplication.
func Multiply(x, y *Op) *Op { return binaryElementwiseOp(KindMultiply, x, y) }

// Divide creates an elementwise division.
func Divide(x, y *Op) *Op { return binaryElementwiseOp(KindDivide, x, y) }

// Maximum creates an elementwise maximum.
func Maximum(x, y *Op) *Op { return binaryElementwiseOp(KindMaximum, x, y) }

// Minimum creates an elementwise minimum.
func Minimum(x, y *Op) *Op { return binaryElementwiseOp(KindMinimum, x, y) }

// Greater creates an elementwise x > y comparison. The logical boolean result
// is represented numerically (0 or 1) in the working float type.
func Greater(x, y *Op) *Op { return binaryElementwiseOp(KindGreater, x, y) }

// Less creates an elementwise x < y comparison, numeric like Greater.
func Less(x, y *Op) *Op { return binaryElementwiseOp(KindLess, x, y) }

// Negative creates an elementwise negation.
func Negative(x *Op) *Op { return newOp(KindNegative, x.axes, x) }

// Reciprocal creates an elementwise 1/x.
func Reciprocal(x *Op) *Op { return newOp(KindReciprocal, x.axes, x) }

// Log creates an elementwise natural logarithm.
func Log(x *Op) *Op { return newOp(KindLog, x.axes, x) }

// Exp creates an elementwise exponential.
func Exp(x *Op) *Op { return newOp(KindExp, x.axes, x) }

// reductionAxesFor resolves reduction axis names against the operand. Names
// are kept even when absent from the operand: the lowering pass reports those
// as ErrAxisLookup, with full node context.
func reductionAxesFor(x *Op, names []string) Axes {
	if len(names) == 0 {
		// Reduce over all axes.
		return x.axes
	}
	reduction := make(Axes, 0, len(names))
	for _, name := range names {
		if pos := x.axes.Index(name); pos >= 0 {
			reduction = append(reduction, x.axes[pos])
		} else {
			reduction = append(reduction, Axis{Name: name})
		}
	}
	return reduction
}

// Sum creates a sum-reduction over the named axes of x. With no names, it
// reduces over all axes, producing a scalar.
func Sum(x *Op, reductionAxes ...string) *Op {
	reduction := reductionAxesFor(x, reductionAxes)
	op := newOp(KindSum, x.axes.Sub(reduction), x)
	op.reductionAxes = reduction
	return op
}

// Max creates a max-reduction over the named axes of x. With no names, it
// reduces over all axes, producing a scalar.
func Max(x *Op, reductionAxes ...string) *Op {
	reduction := reductionAxesFor(x, reductionAxes)
	op := newOp(KindMax, x.axes.Sub(reduction), x)
	op.reductionAxes = reduction
	return op
}

// Dot creates a tensor contraction over the axes shared by name between x
// and y. The result axes are x's non-shared axes followed by y's non-shared
// axes. With zero shared axes, Dot degenerates into an outer product.
func Dot(x, y *Op) *Op {
	common := commonAxes(x.axes, y.axes)
	for _, axis := range common {
		yLength := y.axes[y.axes.Index(axis.Name)].Length
		if yLength != axis.Length {
			exceptions.Panicf("neon.Dot: shared axis %q has length %d in %s but %d in %s",
				axis.Name, axis.Length, x, yLength, y)
		}
	}
	xOut := x.axes.Sub(common)
	yOut := y.axes.Sub(common)
	op := newOp(KindDot, xOut.Concat(yOut), x, y)
	op.reductionAxes = common
	op.xOutAxes = xOut
	op.yOutAxes = yOut
	return op
}

// Broadcast creates a broadcast of x to the given result axes. Every axis of
// x must appear in result with the same length; the extra axes of result are
// the broadcast axes.
func Broadcast(x *Op, result Axes) *Op {
	for _, axis := range x.axes {
		pos := result.Index(axis.Name)
		if pos < 0 {
			exceptions.Panicf("neon.Broadcast: operand axis %q of %s missing from result axes %s",
				axis.Name, x, result)
		}
		if result[pos].Length != axis.Length {
			exceptions.Panicf("neon.Broadcast: axis %q has length %d in %s but %d in result axes %s",
				axis.Name, axis.Length, x, result[pos].Length, result)
		}
	}
	return newOp(KindBroadcast, result, x)
}

// ReorderAxes creates a transposition of x to the axis order given by result,
// which must hold exactly the axes of x.
func ReorderAxes(x *Op, result Axes) *Op {
	if len(result) != len(x.axes) {
		exceptions.Panicf("neon.ReorderAxes: result axes %s must be a permutation of %s", result, x.axes)
	}
	for _, axis := range result {
		pos := x.axes.Index(axis.Name)
		if pos < 0 || x.axes[pos].Length != axis.Length {
			exceptions.Panicf("neon.ReorderAxes: result axes %s must be a permutation of %s", result, x.axes)
		}
	}
	return newOp(KindReorderAxes, result, x)
}

// OneHot creates a one-hot expansion of the integer-valued indices in x: the
// hot axis is inserted at the given position of x's axes, and the result is 1
// where the index matches the position along the hot axis, 0 elsewhere.
func OneHot(x *Op, hot Axis, position int) *Op {
	if position < 0 || position > len(x.axes) {
		exceptions.Panicf("neon.OneHot: position %d out of range for operand %s", position, x)
	}
	if x.axes.Has(hot.Name) {
		exceptions.Panicf("neon.OneHot: axis %q already present in operand %s", hot.Name, x)
	}
	result := make(Axes, 0, len(x.axes)+1)
	result = append(result, x.axes[:position]...)
	result = append(result, hot)
	result = append(result, x.axes[position:]...)
	op := newOp(KindOneHot, MakeAxes(result...), x)
	op.oneHotAxis = hot
	return op
}

// TensorSize creates a compile-time scalar constant holding the number of
// elements spanned by the named axes of x (all axes if none are named).
func TensorSize(x *Op, reductionAxes ...string) *Op {
	reduction := reductionAxesFor(x, reductionAxes)
	for _, axis := range reduction {
		if !x.axes.Has(axis.Name) {
			exceptions.Panicf("neon.TensorSize: axis %q not found in operand %s", axis.Name, x)
		}
	}
	op := newOp(KindTensorSize, MakeAxes(), x)
	op.reductionAxes = reduction
	return op
}

// MapRoles relabels the axes of x to result, which must carry the same
// lengths in the same order. No computation is emitted for it: the result
// aliases the operand's backend node.
func MapRoles(x *Op, result Axes) *Op {
	if len(result) != len(x.axes) {
		exceptions.Panicf("neon.MapRoles: result axes %s must match the lengths of %s", result, x.axes)
	}
	for pos, axis := range result {
		if x.axes[pos].Length != axis.Length {
			exceptions.Panicf("neon.MapRoles: result axes %s must match the lengths of %s", result, x.axes)
		}
	}
	return newOp(KindMapRoles, result, x)
}

// Sequential composes ops to be evaluated in order. The composite's
// meaningful result is its last child.
func Sequential(ops ...*Op) *Op {
	if len(ops) == 0 {
		exceptions.Panicf("neon.Sequential requires at least one child op")
	}
	last := ops[len(ops)-1]
	return newOp(KindSequential, last.axes, ops...)
}

// Parallel composes independent write-producing branches. The branches are
// modeled as control dependencies, each expected to be an Assign; their order
// of evaluation is unspecified. A Parallel has no result value.
func Parallel(branches ...*Op) *Op {
	op := newOp(KindParallel, MakeAxes())
	op.controlDeps = branches
	return op
}

// Assign creates a write of value into the variable v. A given variable may
// be assigned at most once per computation.
func Assign(v, value *Op) *Op {
	if v.kind != KindVariable {
		exceptions.Panicf("neon.Assign: left-hand side %s is not a variable", v)
	}
	return newOp(KindAssign, MakeAxes(), v, value)
}
