package ir

import (
	"fmt"

	"github.com/715d/reflectscan/pkg/symbols"
)

// Builder constructs well-formed methods programmatically. It keeps the
// pred/succ links of the control-flow graph symmetric and assigns
// instruction back-references, so hand-built methods satisfy the same
// invariants as loaded ones.
type Builder struct {
	m      *Method
	blocks map[string]*Block
	cur    *Block
}

// NewBuilder starts a method with the given name, declared parameter types,
// the registers receiving them, and the total register count.
func NewBuilder(name string, params []*symbols.Type, paramRegs []Reg, numRegisters int) *Builder {
	if len(params) != len(paramRegs) {
		panic(fmt.Sprintf("ir: method %s: %d params but %d param registers", name, len(params), len(paramRegs)))
	}
	return &Builder{
		m: &Method{
			Name:         name,
			Params:       params,
			ParamRegs:    paramRegs,
			NumRegisters: numRegisters,
		},
		blocks: make(map[string]*Block),
	}
}

// Block starts (or resumes) the block with the given label. The first block
// started becomes the entry block.
func (b *Builder) Block(label string) *Builder {
	blk, ok := b.blocks[label]
	if !ok {
		blk = &Block{Label: label}
		b.blocks[label] = blk
		b.m.Blocks = append(b.m.Blocks, blk)
	}
	b.cur = blk
	return b
}

// Edge links the blocks with the given labels, creating them if needed.
func (b *Builder) Edge(from, to string) *Builder {
	cur := b.cur
	src := b.block(from)
	dst := b.block(to)
	src.Succs = append(src.Succs, dst)
	dst.Preds = append(dst.Preds, src)
	b.cur = cur
	return b
}

func (b *Builder) block(label string) *Block {
	b.Block(label)
	return b.cur
}

// Append adds an instruction to the current block.
func (b *Builder) Append(in *Instruction) *Builder {
	blk := b.cur
	if blk == nil {
		panic("ir: Append before Block")
	}
	if in.HasDest && int(in.Dest) >= b.m.NumRegisters {
		panic(fmt.Sprintf("ir: dest register %d out of range (method has %d)", in.Dest, b.m.NumRegisters))
	}
	for _, s := range in.Srcs {
		if int(s) >= b.m.NumRegisters {
			panic(fmt.Sprintf("ir: source register %d out of range (method has %d)", s, b.m.NumRegisters))
		}
	}
	in.block = blk
	blk.Insns = append(blk.Insns, in)
	return b
}

// ConstString appends dest <- literal.
func (b *Builder) ConstString(dest Reg, lit *symbols.String) *Builder {
	return b.Append(&Instruction{Op: OpConstString, Dest: dest, HasDest: true, Str: lit})
}

// ConstClass appends dest <- class literal.
func (b *Builder) ConstClass(dest Reg, t *symbols.Type) *Builder {
	return b.Append(&Instruction{Op: OpConstClass, Dest: dest, HasDest: true, Type: t})
}

// Const appends dest <- numeric literal.
func (b *Builder) Const(dest Reg) *Builder {
	return b.Append(&Instruction{Op: OpConst, Dest: dest, HasDest: true})
}

// NewInstance appends dest <- new t.
func (b *Builder) NewInstance(dest Reg, t *symbols.Type) *Builder {
	return b.Append(&Instruction{Op: OpNewInstance, Dest: dest, HasDest: true, Type: t})
}

// Move appends dest <- src.
func (b *Builder) Move(dest, src Reg) *Builder {
	return b.Append(&Instruction{Op: OpMove, Dest: dest, HasDest: true, Srcs: []Reg{src}})
}

// MoveResult appends dest <- pending invoke result.
func (b *Builder) MoveResult(dest Reg) *Builder {
	return b.Append(&Instruction{Op: OpMoveResult, Dest: dest, HasDest: true})
}

// CheckCast appends dest <- (t) src.
func (b *Builder) CheckCast(dest, src Reg, t *symbols.Type) *Builder {
	return b.Append(&Instruction{Op: OpCheckCast, Dest: dest, HasDest: true, Srcs: []Reg{src}, Type: t})
}

// InvokeVirtual appends a virtual call; args[0] is the receiver.
func (b *Builder) InvokeVirtual(callee *MethodRef, args ...Reg) *Builder {
	return b.Append(&Instruction{Op: OpInvokeVirtual, Srcs: args, Callee: callee})
}

// InvokeStatic appends a static call.
func (b *Builder) InvokeStatic(callee *MethodRef, args ...Reg) *Builder {
	return b.Append(&Instruction{Op: OpInvokeStatic, Srcs: args, Callee: callee})
}

// FieldGet appends dest <- obj.field.
func (b *Builder) FieldGet(dest, obj Reg, f *FieldRef) *Builder {
	return b.Append(&Instruction{Op: OpFieldGet, Dest: dest, HasDest: true, Srcs: []Reg{obj}, Field: f})
}

// Goto appends an unconditional branch terminator.
func (b *Builder) Goto() *Builder {
	return b.Append(&Instruction{Op: OpGoto})
}

// IfTest appends a conditional branch on the given registers.
func (b *Builder) IfTest(srcs ...Reg) *Builder {
	return b.Append(&Instruction{Op: OpIfTest, Srcs: srcs})
}

// Return appends return src.
func (b *Builder) Return(src Reg) *Builder {
	return b.Append(&Instruction{Op: OpReturn, Srcs: []Reg{src}})
}

// ReturnVoid appends return-void.
func (b *Builder) ReturnVoid() *Builder {
	return b.Append(&Instruction{Op: OpReturnVoid})
}

// Build finalizes and returns the method.
func (b *Builder) Build() *Method {
	return b.m
}
