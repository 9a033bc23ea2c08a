// Package ir defines the register-based method representation consumed by
// the reflection analysis: instructions, basic blocks, and the control-flow
// graph of a single method body.
//
// The representation is deliberately small. Each instruction carries an
// opcode, an optional destination register, source registers, and whichever
// operand payload the opcode needs (a string literal, a type, a field
// reference, or a resolved callee). All symbol operands are interned
// identities from pkg/symbols.
package ir

import "github.com/715d/reflectscan/pkg/symbols"

// Reg addresses one method-local storage slot.
type Reg uint32

// Op is an instruction opcode.
type Op int

// Opcodes. The set covers the instruction categories the analysis assigns
// distinct transfer rules to; anything else in real bytecode maps onto
// OpBinaryOp or the array/field opcodes and is treated opaquely.
const (
	OpConstString Op = iota // dest <- string literal (Str)
	OpConstClass            // dest <- class literal (Type)
	OpConst                 // dest <- numeric literal
	OpNewInstance           // dest <- new object of Type
	OpMove                  // dest <- srcs[0]
	OpMoveResult            // dest <- result of the preceding invoke
	OpCheckCast             // dest <- srcs[0] narrowed to Type
	OpInvokeVirtual         // call Callee; receiver is srcs[0]
	OpInvokeStatic          // call Callee; no receiver
	OpInvokeDirect          // call Callee; receiver is srcs[0]
	OpFieldGet              // dest <- Field of object srcs[0] (srcs empty for static)
	OpFieldPut              // Field of object srcs[1] <- srcs[0]
	OpArrayGet              // dest <- srcs[0][srcs[1]]
	OpArrayPut              // srcs[0][srcs[1]] <- srcs[2]
	OpBinaryOp              // dest <- srcs[0] op srcs[1]
	OpReturn                // return srcs[0]
	OpReturnVoid
	OpGoto
	OpIfTest // conditional branch on srcs
)

var opNames = map[Op]string{
	OpConstString:   "const-string",
	OpConstClass:    "const-class",
	OpConst:         "const",
	OpNewInstance:   "new-instance",
	OpMove:          "move",
	OpMoveResult:    "move-result",
	OpCheckCast:     "check-cast",
	OpInvokeVirtual: "invoke-virtual",
	OpInvokeStatic:  "invoke-static",
	OpInvokeDirect:  "invoke-direct",
	OpFieldGet:      "field-get",
	OpFieldPut:      "field-put",
	OpArrayGet:      "array-get",
	OpArrayPut:      "array-put",
	OpBinaryOp:      "binary-op",
	OpReturn:        "return",
	OpReturnVoid:    "return-void",
	OpGoto:          "goto",
	OpIfTest:        "if-test",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown-op"
}

// OpByName returns the opcode with the given textual name.
func OpByName(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// MethodRef identifies a statically resolved callee: its declaring class and
// name. Signatures are not tracked; the analysis matches reflective APIs on
// (class, name) alone.
type MethodRef struct {
	Class *symbols.Type
	Name  *symbols.String
}

// FieldRef identifies a field access target, including the field's declared
// type.
type FieldRef struct {
	Class *symbols.Type
	Name  *symbols.String
	Type  *symbols.Type
}

// Instruction is one IR instruction. Dest is meaningful only when HasDest is
// true. Which payload fields are set depends on the opcode.
type Instruction struct {
	Op      Op
	Dest    Reg
	HasDest bool
	Srcs    []Reg

	Str    *symbols.String // OpConstString
	Type   *symbols.Type   // OpConstClass, OpNewInstance, OpCheckCast
	Callee *MethodRef      // invokes
	Field  *FieldRef       // OpFieldGet, OpFieldPut

	block *Block
}

// Block returns the basic block containing the instruction.
func (in *Instruction) Block() *Block { return in.block }

// Block is a basic block: a maximal straight-line instruction sequence with
// explicit control-flow links.
type Block struct {
	Label string
	Insns []*Instruction

	Succs []*Block
	Preds []*Block
}

// Method is one analyzable method body. Blocks[0] is the entry block.
// ParamRegs[i] receives the i-th declared parameter (type Params[i]) on
// entry.
type Method struct {
	Name         string
	Params       []*symbols.Type
	ParamRegs    []Reg
	Blocks       []*Block
	NumRegisters int
}

// Entry returns the entry block, or nil for an empty method.
func (m *Method) Entry() *Block {
	if len(m.Blocks) == 0 {
		return nil
	}
	return m.Blocks[0]
}

// Instructions returns all instructions in block order, the order used for
// reporting. Blocks are laid out in the order they were added, which for
// loaded methods is source order.
func (m *Method) Instructions() []*Instruction {
	var out []*Instruction
	for _, b := range m.Blocks {
		out = append(out, b.Insns...)
	}
	return out
}
