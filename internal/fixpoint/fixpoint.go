// Package fixpoint runs a forward dataflow analysis over a method's
// control-flow graph to a fixed point.
//
// The driver is parameterized over the abstract state type: callers supply
// the transfer function for one block, the join, and the equality test. It
// propagates block output states along successor edges, joining at merge
// points and re-enqueueing a successor only when its accumulated input
// changed. Termination follows from the finite graph and the finite height
// of the caller's lattice; no widening beyond the join is needed.
package fixpoint

import "github.com/715d/reflectscan/pkg/ir"

// Funcs bundles the lattice operations of the caller's state type.
type Funcs[S any] struct {
	// Bottom returns the no-information state non-entry blocks start from.
	Bottom func() S

	// StepBlock advances a copy of the input state across every
	// instruction of the block and returns the output state. It must not
	// retain or mutate the input.
	StepBlock func(S, *ir.Block) S

	// Join returns the least upper bound of two states, mutating neither.
	Join func(S, S) S

	// Equal reports whether two states carry the same information.
	Equal func(S, S) bool
}

// Run computes, for every reachable block, the join of the output states of
// its predecessors: the abstract state holding on entry to the block. The
// entry block starts from the given seeded state. Blocks unreachable from
// the entry are absent from the result.
func Run[S any](m *ir.Method, entry S, fns Funcs[S]) map[*ir.Block]S {
	in := make(map[*ir.Block]S, len(m.Blocks))
	start := m.Entry()
	if start == nil {
		return in
	}
	in[start] = entry

	queued := make(map[*ir.Block]bool, len(m.Blocks))
	worklist := []*ir.Block{start}
	queued[start] = true

	// Double-buffered worklist: drain one batch while filling the next,
	// reusing both backing arrays across iterations.
	shadow := make([]*ir.Block, 0, len(m.Blocks))
	for len(worklist) > 0 {
		shadow, worklist = worklist, shadow[:0]
		for _, b := range shadow {
			queued[b] = false
			out := fns.StepBlock(in[b], b)
			for _, succ := range b.Succs {
				accumulated, seen := in[succ]
				if !seen {
					accumulated = fns.Bottom()
				}
				joined := fns.Join(accumulated, out)
				if seen && fns.Equal(joined, accumulated) {
					continue
				}
				in[succ] = joined
				if !queued[succ] {
					worklist = append(worklist, succ)
					queued[succ] = true
				}
			}
		}
	}
	return in
}
