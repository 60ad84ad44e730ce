// Package neon lowers a symbolic op graph over named, shaped axes into a
// GoMLX backend graph of primitive operations.
//
// The op graph is a DAG built with the constructors in this package (Add,
// Dot, Sum, Sequential, Assign, ...), with every tensor dimension carried as
// a named Axis. Lowering is a single dependency-ordered traversal per
// computation:
//
//	backend := ... // any GoMLX backend
//	g := graph.NewGraph(backend, "model")
//	comp, err := neon.Lower(g, results...)
//
// The returned Computation maps each tensor identity to its backend node and
// records, per stateful tensor, the scope under which it was assigned. The
// backend graph is then compiled and executed by GoMLX; this package emits
// it, it does not run kernels of its own.
//
// Stateful updates are expressed with Variable, Assign and the
// Sequential/Parallel composition ops. A scope-tagging pre-pass labels every
// node with its nesting path (e.g. "root/seq0/par1"), and each variable may
// be assigned at most once per computation.
package neon
