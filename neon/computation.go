package neon

// This file defines the per-lowering-pass state: the backend node table, the
// scope labels and the variable write table, all keyed by the stable handles
// assigned at graph construction. One Computation is created per lowering
// invocation and holds no cross-call state; it must not be shared between
// concurrent lowering passes.

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// VariableWrite records the single write a stateful tensor received during
// one lowering pass: the scope under which the Assign was found and the
// backend node holding the assigned value.
type VariableWrite struct {
	Scope string
	Value *graph.Node
}

// Computation holds the result of lowering one op graph into a backend
// graph: the mapping from tensor identities to backend nodes, the scope
// labels of the traversed nodes and the variable writes found.
//
// All tables are exclusively owned by one in-flight lowering invocation. The
// backend primitive library is treated as thread-unsafe: never lower into the
// same backend graph concurrently.
type Computation struct {
	graph *graph.Graph

	// handles maps each materialized tensor identity to its backend node.
	// At most one entry exists per tensor identity.
	handles map[TensorID]*graph.Node

	// scopes holds the scope label of every node reachable from the results.
	scopes       map[NodeID]string
	scopeVisited sets.Set[NodeID]
	seqCount     int
	parCount     int

	// writes records, per stateful tensor, the one scope/value pair assigned
	// to it. A second write to the same tensor identity aborts the pass.
	writes map[TensorID]VariableWrite

	lowered sets.Set[NodeID]
	ranks   map[NodeID]int
}

func newComputation(g *graph.Graph) *Computation {
	return &Computation{
		graph:        g,
		handles:      make(map[TensorID]*graph.Node),
		scopes:       make(map[NodeID]string),
		scopeVisited: sets.Make[NodeID](),
		writes:       make(map[TensorID]VariableWrite),
		lowered:      sets.Make[NodeID](),
		ranks:        make(map[NodeID]int),
	}
}

// Lower translates the op graph reachable from the given result nodes into
// backend primitive nodes emitted on g. It runs the scope-tagging pass and
// then a single dependency-ordered lowering traversal.
//
// The returned Computation gives access to the backend nodes of the results
// (Computation.BackendNode) and to the variable write table consumed by the
// stage that finalizes update semantics.
//
// Errors are never transient: they report an invalid or unsupported input
// graph, and no partial backend graph should be trusted after one.
func Lower(g *graph.Graph, results ...*Op) (comp *Computation, err error) {
	if g == nil {
		return nil, errors.New("neon.Lower: backend graph is nil")
	}
	comp = newComputation(g)
	err = exceptions.TryCatch[error](func() {
		comp.recordScope(results)
		for _, op := range results {
			comp.lowerNode(op)
		}
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("neon.Lower: %d nodes lowered, %d tensors materialized, %d variable writes",
		len(comp.lowered), len(comp.handles), len(comp.writes))
	return comp, nil
}

// Graph returns the backend graph the computation was lowered into.
func (comp *Computation) Graph() *graph.Graph { return comp.graph }

// BackendNode returns the backend node materialized for the op's tensor
// identity, or nil if the op has none (e.g. a Parallel composite, or an op
// not reachable from the lowered results).
func (comp *Computation) BackendNode(op *Op) *graph.Node {
	return comp.handles[op.tid]
}

// Scope returns the scope label assigned to op by the scope-tagging pass, or
// the empty string if op was not reachable from the results.
func (comp *Computation) Scope(op *Op) string {
	return comp.scopes[op.id]
}

// VariableWrite returns the write recorded for the given variable, if any.
func (comp *Computation) VariableWrite(v *Op) (write VariableWrite, found bool) {
	write, found = comp.writes[v.tid]
	return
}

// VariableWrites returns the full variable write table, keyed by tensor
// identity. The table is owned by the computation; callers must not mutate
// it.
func (comp *Computation) VariableWrites() map[TensorID]VariableWrite {
	return comp.writes
}
