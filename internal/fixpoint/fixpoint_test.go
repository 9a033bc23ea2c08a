package fixpoint

import (
	"maps"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflectscan/pkg/ir"
)

// labelSet is a test lattice: sets of block labels ordered by inclusion,
// joined by union. StepBlock adds the block's own label, so the fixed point
// computes, for each block, which blocks lie on some path to it.
type labelSet map[string]bool

func labelFuncs() Funcs[labelSet] {
	return Funcs[labelSet]{
		Bottom: func() labelSet { return labelSet{} },
		StepBlock: func(s labelSet, b *ir.Block) labelSet {
			out := maps.Clone(s)
			out[b.Label] = true
			return out
		},
		Join: func(a, b labelSet) labelSet {
			out := maps.Clone(a)
			maps.Copy(out, b)
			return out
		},
		Equal: maps.Equal[labelSet, labelSet],
	}
}

func diamond() *ir.Method {
	b := ir.NewBuilder("m", nil, nil, 1)
	b.Block("entry").IfTest(0).
		Edge("entry", "left").Edge("entry", "right")
	b.Block("left").Goto().Edge("left", "merge")
	b.Block("right").Goto().Edge("right", "merge")
	b.Block("merge").ReturnVoid()
	return b.Build()
}

// TestRun_JoinsAtMergePoints checks that a merge block's input is the join
// of both predecessor outputs.
func TestRun_JoinsAtMergePoints(t *testing.T) {
	m := diamond()
	in := Run(m, labelSet{"seed": true}, labelFuncs())

	require.Len(t, in, 4)
	require.Equal(t, labelSet{"seed": true}, in[m.Blocks[0]])
	require.Equal(t, labelSet{"seed": true, "entry": true}, in[m.Blocks[1]])
	require.Equal(t, labelSet{"seed": true, "entry": true}, in[m.Blocks[2]])
	require.Equal(t,
		labelSet{"seed": true, "entry": true, "left": true, "right": true},
		in[m.Blocks[3]])
}

// TestRun_LoopConverges checks that a back edge is iterated until the input
// of the loop header stops changing.
func TestRun_LoopConverges(t *testing.T) {
	b := ir.NewBuilder("m", nil, nil, 1)
	b.Block("entry").Goto().Edge("entry", "head")
	b.Block("head").IfTest(0).
		Edge("head", "body").Edge("head", "exit")
	b.Block("body").Goto().Edge("body", "head")
	b.Block("exit").ReturnVoid()
	m := b.Build()

	in := Run(m, labelSet{}, labelFuncs())

	// The header's stable input includes the body's contribution carried
	// around the back edge.
	head := m.Blocks[1]
	require.Equal(t, labelSet{"entry": true, "head": true, "body": true}, in[head])
	require.Equal(t, labelSet{"entry": true, "head": true, "body": true}, in[m.Blocks[3]])
}

// TestRun_UnreachableBlocksAbsent checks that blocks with no path from the
// entry do not appear in the result.
func TestRun_UnreachableBlocksAbsent(t *testing.T) {
	b := ir.NewBuilder("m", nil, nil, 1)
	b.Block("entry").ReturnVoid()
	b.Block("orphan").ReturnVoid()
	m := b.Build()

	in := Run(m, labelSet{}, labelFuncs())
	require.Contains(t, in, m.Blocks[0])
	require.NotContains(t, in, m.Blocks[1])
}

// TestRun_EmptyMethod checks the degenerate no-blocks case.
func TestRun_EmptyMethod(t *testing.T) {
	m := ir.NewBuilder("m", nil, nil, 1).Build()
	require.Empty(t, Run(m, labelSet{}, labelFuncs()))
}
