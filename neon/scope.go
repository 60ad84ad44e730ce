package neon

// Scope-tagging pass: a pre-order traversal of the node set required by the
// result list, assigning each visited node a hierarchical scope label.
//
// Scope rules:
//   - The default scope is "root".
//   - Sequential and Parallel nesting boundaries extend the enclosing scope
//     with "seq<N>" / "par<N>" segments, like a posix path.
//   - Every node is labeled at most once: the first scope reached through the
//     pre-order traversal wins, with the argument-list order keeping the
//     result deterministic across runs.
//
// The labels disambiguate multiple writes to the same stateful tensor across
// sequential/parallel composition blocks.

import (
	"fmt"

	"k8s.io/klog/v2"
)

// RootScope is the scope label of the traversal roots.
const RootScope = "root"

// ScopeSeparator joins the nested segments of a scope label.
const ScopeSeparator = "/"

func extendScope(scope, leaf string) string {
	return scope + ScopeSeparator + leaf
}

// newSeqScope allocates a child scope for a Sequential block. The counter is
// monotonically increasing for the lifetime of the computation, never reset
// mid-pass.
func (comp *Computation) newSeqScope(scope string) string {
	child := extendScope(scope, fmt.Sprintf("seq%d", comp.seqCount))
	comp.seqCount++
	return child
}

// newParScope allocates a child scope for a Parallel block.
func (comp *Computation) newParScope(scope string) string {
	child := extendScope(scope, fmt.Sprintf("par%d", comp.parCount))
	comp.parCount++
	return child
}

// recordScope tags every node required by results with its scope label. It
// only populates comp.scopes and the visited set; the lowering traversal
// reads the labels when recording variable writes.
func (comp *Computation) recordScope(results []*Op) {
	var visitPreOrder func(scope string, op *Op)
	visitPreOrder = func(scope string, op *Op) {
		if comp.scopeVisited.Has(op.id) {
			return
		}
		comp.scopeVisited.Insert(op.id)
		comp.scopes[op.id] = scope
		if klog.V(3).Enabled() {
			klog.Infof("scope %q: %s", scope, op)
		}

		childScope := scope
		children := op.args
		switch op.kind {
		case KindSequential:
			childScope = comp.newSeqScope(scope)
		case KindParallel:
			// Parallel branches are control dependencies, not value operands.
			childScope = comp.newParScope(scope)
			children = op.controlDeps
		}
		for _, child := range children {
			visitPreOrder(childScope, child)
		}
	}

	for _, op := range results {
		visitPreOrder(RootScope, op)
	}
}
