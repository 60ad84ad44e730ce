package neon

import "github.com/pkg/errors"

// Error kinds surfaced by the lowering pass. None of them is transient: each
// one reflects an invalid or unsupported input graph and aborts the pass.
// They are wrapped with node context, so test with errors.Is.
var (
	// ErrUnsupportedOperation is reported when an op-graph node kind has no
	// dispatch entry in the lowering pass.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrDuplicateVariableWrite is reported when the same stateful tensor is
	// assigned more than once within one lowering pass. There are no
	// merge/overwrite semantics: each logical execution path must assign each
	// variable at most once.
	ErrDuplicateVariableWrite = errors.New("variable updated more than once")

	// ErrInvalidTraversal is an internal-consistency failure: the traversal
	// reached a node it must never visit directly (e.g. a variable's
	// definition node instead of an Assign), or found an operand that was not
	// materialized before its consumer.
	ErrInvalidTraversal = errors.New("invalid graph traversal")

	// ErrAxisLookup is reported when a required axis name is absent, e.g. a
	// reshape target axis not found in the source axes.
	ErrAxisLookup = errors.New("axis not found")
)
