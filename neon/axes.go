package neon

// This file implements the named-axis model and the axis algebra used by the
// lowering pass: reduction-axis positions, shared axes for contractions and
// axis reordering for reshapes/transposes.

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Axis names one dimension of a tensor and carries its length.
type Axis struct {
	Name   string
	Length int
}

// MakeAxis returns an Axis with the given name and length.
func MakeAxis(name string, length int) Axis {
	return Axis{Name: name, Length: length}
}

// Axes is an ordered sequence of named axes with no duplicate names.
// It defines the shape of a tensor value and the mapping from axis name to
// numeric position.
type Axes []Axis

// MakeAxes builds an Axes collection and panics (throws an exception) if any
// axis name is repeated or empty.
func MakeAxes(axes ...Axis) Axes {
	seen := make(map[string]bool, len(axes))
	for _, axis := range axes {
		if axis.Name == "" {
			exceptions.Panicf("neon.MakeAxes: axis with empty name (length %d)", axis.Length)
		}
		if seen[axis.Name] {
			exceptions.Panicf("neon.MakeAxes: duplicate axis name %q", axis.Name)
		}
		seen[axis.Name] = true
	}
	return Axes(axes)
}

// Names returns the axis names in order.
func (axes Axes) Names() []string {
	return sliceMap(axes, func(axis Axis) string { return axis.Name })
}

// Lengths returns the axis lengths in order: the tensor shape.
func (axes Axes) Lengths() []int {
	return sliceMap(axes, func(axis Axis) int { return axis.Length })
}

// Rank returns the number of axes.
func (axes Axes) Rank() int { return len(axes) }

// Size returns the total number of elements: the product of all lengths.
// An empty Axes describes a scalar, with size 1.
func (axes Axes) Size() int {
	size := 1
	for _, axis := range axes {
		size *= axis.Length
	}
	return size
}

// Index returns the position of the named axis, or -1 if absent.
func (axes Axes) Index(name string) int {
	for pos, axis := range axes {
		if axis.Name == name {
			return pos
		}
	}
	return -1
}

// Has reports whether the named axis is present.
func (axes Axes) Has(name string) bool { return axes.Index(name) >= 0 }

// Equal reports whether both collections have the same axes, in the same
// order, with the same lengths.
func (axes Axes) Equal(other Axes) bool {
	if len(axes) != len(other) {
		return false
	}
	for pos, axis := range axes {
		if other[pos] != axis {
			return false
		}
	}
	return true
}

// Concat returns the concatenation of axes and other.
// It panics if the result would repeat an axis name.
func (axes Axes) Concat(other Axes) Axes {
	result := make(Axes, 0, len(axes)+len(other))
	result = append(result, axes...)
	result = append(result, other...)
	return MakeAxes(result...)
}

// Sub returns the axes of the receiver whose names are not in other,
// preserving the receiver's order.
func (axes Axes) Sub(other Axes) Axes {
	result := make(Axes, 0, len(axes))
	for _, axis := range axes {
		if !other.Has(axis.Name) {
			result = append(result, axis)
		}
	}
	return result
}

// Intersect returns the axes of the receiver whose names also appear in
// other, preserving the receiver's order and lengths.
func (axes Axes) Intersect(other Axes) Axes {
	result := make(Axes, 0, len(axes))
	for _, axis := range axes {
		if other.Has(axis.Name) {
			result = append(result, axis)
		}
	}
	return result
}

// String implements fmt.Stringer. E.g.: "(N:32, C:3)".
func (axes Axes) String() string {
	parts := sliceMap(axes, func(axis Axis) string {
		return fmt.Sprintf("%s:%d", axis.Name, axis.Length)
	})
	return "(" + strings.Join(parts, ", ") + ")"
}

// reductionAxisPositions returns the positions, in the operand's axis order,
// of the reduction axes declared by op. Every declared reduction axis must be
// present in the operand: a missing name is reported as an ErrAxisLookup
// failure, never silently defaulted.
func reductionAxisPositions(op *Op) ([]int, error) {
	operandAxes := op.args[0].axes
	positions := make([]int, 0, len(op.reductionAxes))
	for _, axis := range op.reductionAxes {
		pos := operandAxes.Index(axis.Name)
		if pos < 0 {
			return nil, errors.Wrapf(ErrAxisLookup,
				"reduction axis %q of %s not found in operand axes %s",
				axis.Name, op, operandAxes)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// commonAxes returns the axes shared by name between the two operands of a
// contraction, in the first operand's order. Zero shared axes is a valid
// result: the contraction degenerates into an outer product.
func commonAxes(x, y Axes) Axes {
	return x.Intersect(y)
}

// axisOrderForReshape returns, for each position in target, the index of that
// axis name within current. A target name absent from current is a hard
// ErrAxisLookup failure.
func axisOrderForReshape(current, target []string) ([]int, error) {
	currentAxes := make(map[string]int, len(current))
	for pos, name := range current {
		currentAxes[name] = pos
	}
	order := make([]int, len(target))
	for pos, name := range target {
		idx, found := currentAxes[name]
		if !found {
			return nil, errors.Wrapf(ErrAxisLookup,
				"axis %q not found in source axes %q", name, current)
		}
		order[pos] = idx
	}
	return order, nil
}

// shapeFromAxisOrder maps an axis-order permutation to the correspondingly
// permuted shape.
func shapeFromAxisOrder(order, shape []int) []int {
	return sliceMap(order, func(idx int) int { return shape[idx] })
}

// sliceMap executes the given function sequentially for every element on in and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
