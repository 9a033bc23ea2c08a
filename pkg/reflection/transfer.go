package reflection

import (
	"github.com/715d/reflectscan/pkg/ir"
	"github.com/715d/reflectscan/pkg/symbols"
)

// transfer implements the per-instruction semantics. step is total: every
// opcode has a defined rule, with the opaque fallback destroying knowledge
// of written registers instead of failing.
type transfer struct {
	table *symbols.Table
}

// step advances st across in, mutating st, and reports whether the
// instruction was recognized as a reflective call.
func (tr *transfer) step(st state, in *ir.Instruction) bool {
	switch in.Op {
	case ir.OpConstString:
		st.setValue(in.Dest, NewString(in.Str), bottomSource())

	case ir.OpConstClass:
		// const-class is classified as a reflective source, like
		// Class.forName; only parameter loads and field reads count as
		// ordinary type flow.
		st.setValue(in.Dest, NewClass(in.Type), constSource(SourceReflective))

	case ir.OpNewInstance:
		st.setValue(in.Dest, NewObject(in.Type), bottomSource())

	case ir.OpMove:
		st.setBinding(in.Dest, st.get(in.Srcs[0]))

	case ir.OpMoveResult:
		st.setBinding(in.Dest, st.get(ResultReg))

	case ir.OpCheckCast:
		tr.stepCheckCast(st, in)

	case ir.OpInvokeVirtual, ir.OpInvokeStatic, ir.OpInvokeDirect:
		return tr.stepInvoke(st, in)

	case ir.OpFieldGet:
		if in.Field == nil || in.Field.Type == nil {
			st.setTop(in.Dest)
			break
		}
		tr.setDeclaredType(st, in.Dest, in.Field.Type)

	case ir.OpFieldPut, ir.OpArrayPut, ir.OpReturn, ir.OpReturnVoid, ir.OpGoto, ir.OpIfTest:
		// No register is written; the abstract state is unchanged.

	default:
		// Opaque: arithmetic, array reads, numeric constants. Whatever the
		// instruction writes is unknown afterwards.
		if in.HasDest {
			st.setTop(in.Dest)
		}
	}
	return false
}

// setDeclaredType models ordinary type flow into a register: a value of a
// statically declared type. A declared type of java.lang.Class yields a
// Class handle of unconstrained type, tagged non-reflective.
func (tr *transfer) setDeclaredType(st state, dest ir.Reg, t *symbols.Type) {
	if t == tr.table.JavaLangClass() {
		st.setValue(dest, NewClass(nil), constSource(SourceNonReflective))
		return
	}
	st.setValue(dest, NewObject(t), bottomSource())
}

// stepCheckCast propagates the operand, narrowing an unconstrained Object
// or Class type to the cast target. An untracked operand becomes a value of
// the cast's declared type: the cast proves the dynamic type.
func (tr *transfer) stepCheckCast(st state, in *ir.Instruction) {
	b := st.get(in.Srcs[0])
	obj, ok := b.dom.Value()
	if !ok {
		tr.setDeclaredType(st, in.Dest, in.Type)
		return
	}
	if (obj.Kind == KindObject || obj.Kind == KindClass) && obj.Type == nil {
		obj = obj.clone()
		obj.Type = in.Type
	}
	st.setBinding(in.Dest, binding{dom: ValueDomain(obj), src: b.src})
}

// stepInvoke matches the callee against the recognized reflective APIs and
// computes the pending result. Unrecognized calls produce an unknown
// result.
func (tr *transfer) stepInvoke(st state, in *ir.Instruction) bool {
	callee := in.Callee
	if callee == nil {
		st.setTop(ResultReg)
		return false
	}
	tb := tr.table

	switch {
	case callee.Name == tb.NameGetClass() && callee.Class == tb.JavaLangObject():
		tr.stepGetClass(st, in)
		return true

	case callee.Name == tb.NameForName() && callee.Class == tb.JavaLangClass():
		tr.stepForName(st, in)
		return true

	case callee.Class == tb.JavaLangClass() &&
		(callee.Name == tb.NameGetField() || callee.Name == tb.NameGetDeclaredField()):
		tr.stepGetMember(st, in, KindField)
		return true

	case callee.Class == tb.JavaLangClass() &&
		(callee.Name == tb.NameGetMethod() || callee.Name == tb.NameGetDeclaredMethod()):
		tr.stepGetMember(st, in, KindMethod)
		return true

	case callee.Name == tb.NameGetName() &&
		(callee.Class == tb.ReflectField() || callee.Class == tb.ReflectMethod()):
		tr.stepGetName(st, in)
		return true
	}

	st.setTop(ResultReg)
	return false
}

// stepGetClass models Object.getClass(): a Class handle typed by the
// receiver's tracked type when known, carrying the receiver's candidate
// set.
func (tr *transfer) stepGetClass(st state, in *ir.Instruction) {
	result := NewClass(nil)
	if len(in.Srcs) > 0 {
		if recv, ok := st.get(in.Srcs[0]).dom.Value(); ok && recv.Kind == KindObject {
			result = NewClass(recv.Type).WithCandidates(recv.Candidates)
		}
	}
	st.setValue(ResultReg, result, constSource(SourceReflective))
}

// stepForName models Class.forName(name): when the name register holds a
// known string literal, the literal resolves to a type identity; otherwise
// the class is unconstrained. Either way the handle is reflective.
func (tr *transfer) stepForName(st state, in *ir.Instruction) {
	result := NewClass(nil)
	if len(in.Srcs) > 0 {
		if arg, ok := st.get(in.Srcs[0]).dom.Value(); ok && arg.Kind == KindString {
			result = NewClass(tr.table.TypeForName(arg.Name))
		}
	}
	st.setValue(ResultReg, result, constSource(SourceReflective))
}

// stepGetMember models Class.getField / getDeclaredField / getMethod /
// getDeclaredMethod: a member handle bound to the receiver's class type and
// the name argument when both are tracked.
func (tr *transfer) stepGetMember(st state, in *ir.Instruction, kind Kind) {
	var class *symbols.Type
	var candidates TypeSet
	if len(in.Srcs) > 0 {
		if recv, ok := st.get(in.Srcs[0]).dom.Value(); ok && recv.Kind == KindClass {
			class = recv.Type
			candidates = recv.Candidates
		}
	}

	var name *symbols.String
	if len(in.Srcs) > 1 {
		if arg, ok := st.get(in.Srcs[1]).dom.Value(); ok && arg.Kind == KindString {
			name = arg.Name
		}
	}

	result := NewUnknownMember(kind, class)
	if name != nil {
		result = NewMember(kind, class, name)
	}
	st.setValue(ResultReg, result.WithCandidates(candidates), bottomSource())
}

// stepGetName models Field.getName / Method.getName: recovers the bound
// member name as a string value when it is known.
func (tr *transfer) stepGetName(st state, in *ir.Instruction) {
	if len(in.Srcs) > 0 {
		recv, ok := st.get(in.Srcs[0]).dom.Value()
		if ok && (recv.Kind == KindField || recv.Kind == KindMethod) && recv.Name != nil {
			st.setValue(ResultReg, NewString(recv.Name), bottomSource())
			return
		}
	}
	st.setTop(ResultReg)
}
