package reflection

import (
	"github.com/715d/reflectscan/internal/fixpoint"
	"github.com/715d/reflectscan/pkg/ir"
	"github.com/715d/reflectscan/pkg/symbols"
)

// Binding is one register's abstract fact at a reflection site: the tracked
// value and, for Class-kind values, its provenance when determined.
type Binding struct {
	Obj       AbstractObject
	Source    ClassSource
	HasSource bool
}

// Site is an instruction recognized as a reflective call, paired with the
// relevant register bindings: the argument registers holding reflection
// outputs immediately before the call, plus the produced value under
// ResultReg.
type Site struct {
	Insn     *ir.Instruction
	Bindings map[ir.Reg]Binding
}

// Analysis holds the result of analyzing one method. It is built eagerly by
// Analyze and immutable afterwards; all queries are answered from the
// stored per-instruction states. The analyzed method and the symbol table
// are borrowed read-only and must outlive the Analysis.
type Analysis struct {
	method *ir.Method
	before map[*ir.Instruction]state
	sites  []Site
}

// Analyze runs the reflection analysis over the method to a fixed point.
// The analysis is total: it never fails on well-formed IR, degrading to
// "unknown" instead.
func Analyze(m *ir.Method, table *symbols.Table) *Analysis {
	tr := &transfer{table: table}

	entry := newState()
	for i, t := range m.Params {
		tr.setDeclaredType(entry, m.ParamRegs[i], t)
	}

	blockIn := fixpoint.Run(m, entry, fixpoint.Funcs[state]{
		Bottom: newState,
		StepBlock: func(st state, b *ir.Block) state {
			st = st.clone()
			for _, in := range b.Insns {
				tr.step(st, in)
			}
			return st
		},
		Join:  state.join,
		Equal: state.equal,
	})

	a := &Analysis{
		method: m,
		before: make(map[*ir.Instruction]state),
	}

	// Replay each reachable block once from its fixed-point input,
	// persisting the pre-instruction state and collecting reflection
	// sites in block order.
	for _, b := range m.Blocks {
		st, reachable := blockIn[b]
		if !reachable {
			st = newState()
		}
		st = st.clone()
		for _, in := range b.Insns {
			a.before[in] = st.clone()
			if tr.step(st, in) {
				a.sites = append(a.sites, siteFor(in, a.before[in], st))
			}
		}
	}
	return a
}

// siteFor assembles the relevant bindings of a recognized reflective call:
// argument registers whose pre-call value is a reflection output, and the
// call's own result from the post-call state.
func siteFor(in *ir.Instruction, pre, post state) Site {
	s := Site{Insn: in, Bindings: make(map[ir.Reg]Binding)}
	for _, reg := range in.Srcs {
		if obj, ok := pre.get(reg).dom.Value(); ok && obj.IsReflectionOutput() {
			s.Bindings[reg] = snapshot(pre.get(reg))
		}
	}
	if obj, ok := post.get(ResultReg).dom.Value(); ok && obj.IsReflectionOutput() {
		s.Bindings[ResultReg] = snapshot(post.get(ResultReg))
	}
	return s
}

func snapshot(b binding) Binding {
	obj, _ := b.dom.Value()
	src, hasSrc := b.src.value()
	return Binding{Obj: obj.clone(), Source: src, HasSource: hasSrc}
}

// GetAbstractObject returns the value held by the register immediately
// before the instruction executes. If the instruction overwrites the
// register, the returned value is still the one held before execution. The
// second result is false when the register carries no precise value there
// (Top, Bottom, or an unreachable instruction).
func (a *Analysis) GetAbstractObject(reg ir.Reg, in *ir.Instruction) (AbstractObject, bool) {
	st, ok := a.before[in]
	if !ok {
		return AbstractObject{}, false
	}
	obj, ok := st.get(reg).dom.Value()
	if !ok {
		return AbstractObject{}, false
	}
	return obj.clone(), true
}

// GetClassSource returns the provenance of the Class handle held by the
// register immediately before the instruction, when both the value is
// Class-kind and its provenance is determined.
func (a *Analysis) GetClassSource(reg ir.Reg, in *ir.Instruction) (ClassSource, bool) {
	st, ok := a.before[in]
	if !ok {
		return 0, false
	}
	b := st.get(reg)
	if obj, ok := b.dom.Value(); !ok || obj.Kind != KindClass {
		return 0, false
	}
	return b.src.value()
}

// ReflectionSites returns the recognized reflective calls in instruction
// order, each with its relevant bindings. The returned values are
// snapshots; mutating them does not affect the analysis.
func (a *Analysis) ReflectionSites() []Site {
	sites := make([]Site, len(a.sites))
	for i, s := range a.sites {
		cp := Site{Insn: s.Insn, Bindings: make(map[ir.Reg]Binding, len(s.Bindings))}
		for reg, b := range s.Bindings {
			b.Obj = b.Obj.clone()
			cp.Bindings[reg] = b
		}
		sites[i] = cp
	}
	return sites
}

// HasFoundReflection reports whether the method contains at least one
// recognized reflective call.
func (a *Analysis) HasFoundReflection() bool {
	return len(a.sites) > 0
}

// Method returns the analyzed method.
func (a *Analysis) Method() *ir.Method {
	return a.method
}
