// Package irload parses method fixtures from YAML into the analyzable IR.
//
// A fixture describes one or more methods, each with declared parameter
// types, a register count, and labelled basic blocks of textual
// instructions. All type descriptors and string literals are interned
// through one shared symbols.Table so identities are canonical across
// methods.
package irload

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/715d/reflectscan/pkg/ir"
	"github.com/715d/reflectscan/pkg/symbols"
)

// File is the top-level fixture schema.
type File struct {
	Methods []MethodSpec `yaml:"methods"`
}

// MethodSpec describes one method body.
type MethodSpec struct {
	Name      string      `yaml:"name"`
	Params    []string    `yaml:"params,omitempty"`
	ParamRegs []uint32    `yaml:"param_regs,omitempty"`
	Registers int         `yaml:"registers"`
	Blocks    []BlockSpec `yaml:"blocks"`
}

// BlockSpec describes one basic block and its successor labels.
type BlockSpec struct {
	Label string     `yaml:"label"`
	Succs []string   `yaml:"succs,omitempty"`
	Code  []InsnSpec `yaml:"code"`
}

// InsnSpec describes one instruction. Which fields apply depends on the
// opcode; Callee uses "Ldecl/Class;->name" notation and Field
// "Ldecl/Class;->name:Ltype;".
type InsnSpec struct {
	Op     string   `yaml:"op"`
	Dest   *uint32  `yaml:"dest,omitempty"`
	Src    *uint32  `yaml:"src,omitempty"`
	Args   []uint32 `yaml:"args,omitempty"`
	String *string  `yaml:"string,omitempty"`
	Type   string   `yaml:"type,omitempty"`
	Callee string   `yaml:"callee,omitempty"`
	Field  string   `yaml:"field,omitempty"`
}

// LoadFile reads and parses a fixture file, interning symbols through the
// given table.
func LoadFile(path string, table *symbols.Table) ([]*ir.Method, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	methods, err := Parse(data, table)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return methods, nil
}

// Parse decodes fixture YAML into methods.
func Parse(data []byte, table *symbols.Table) ([]*ir.Method, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if len(file.Methods) == 0 {
		return nil, fmt.Errorf("fixture contains no methods")
	}

	methods := make([]*ir.Method, 0, len(file.Methods))
	for _, spec := range file.Methods {
		m, err := buildMethod(spec, table)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", spec.Name, err)
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func buildMethod(spec MethodSpec, table *symbols.Table) (*ir.Method, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	if spec.Registers <= 0 {
		return nil, fmt.Errorf("registers must be positive, got %d", spec.Registers)
	}
	if len(spec.Blocks) == 0 {
		return nil, fmt.Errorf("no blocks")
	}

	params := make([]*symbols.Type, len(spec.Params))
	for i, desc := range spec.Params {
		params[i] = table.Type(desc)
	}

	// Parameters land in the highest registers by default, dex style;
	// param_regs overrides.
	paramRegs := make([]ir.Reg, len(params))
	if len(spec.ParamRegs) > 0 {
		if len(spec.ParamRegs) != len(params) {
			return nil, fmt.Errorf("%d param_regs for %d params", len(spec.ParamRegs), len(params))
		}
		for i, r := range spec.ParamRegs {
			paramRegs[i] = ir.Reg(r)
		}
	} else {
		base := spec.Registers - len(params)
		if base < 0 {
			return nil, fmt.Errorf("%d registers cannot hold %d params", spec.Registers, len(params))
		}
		for i := range params {
			paramRegs[i] = ir.Reg(base + i)
		}
	}

	b := ir.NewBuilder(spec.Name, params, paramRegs, spec.Registers)
	labels := make(map[string]bool, len(spec.Blocks))
	for _, blk := range spec.Blocks {
		if blk.Label == "" {
			return nil, fmt.Errorf("block without label")
		}
		if labels[blk.Label] {
			return nil, fmt.Errorf("duplicate block label %q", blk.Label)
		}
		labels[blk.Label] = true

		b.Block(blk.Label)
		for i, insn := range blk.Code {
			built, err := buildInsn(insn, spec.Registers, table)
			if err != nil {
				return nil, fmt.Errorf("block %q insn %d: %w", blk.Label, i, err)
			}
			b.Append(built)
		}
	}
	for _, blk := range spec.Blocks {
		for _, succ := range blk.Succs {
			if !labels[succ] {
				return nil, fmt.Errorf("block %q: unknown successor %q", blk.Label, succ)
			}
			b.Edge(blk.Label, succ)
		}
	}
	return b.Build(), nil
}

func buildInsn(spec InsnSpec, numRegisters int, table *symbols.Table) (*ir.Instruction, error) {
	op, ok := ir.OpByName(spec.Op)
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", spec.Op)
	}

	in := &ir.Instruction{Op: op}
	if spec.Dest != nil {
		if int(*spec.Dest) >= numRegisters {
			return nil, fmt.Errorf("dest register %d out of range", *spec.Dest)
		}
		in.Dest = ir.Reg(*spec.Dest)
		in.HasDest = true
	}
	if spec.Src != nil {
		in.Srcs = append(in.Srcs, ir.Reg(*spec.Src))
	}
	for _, a := range spec.Args {
		in.Srcs = append(in.Srcs, ir.Reg(a))
	}
	for _, s := range in.Srcs {
		if int(s) >= numRegisters {
			return nil, fmt.Errorf("source register %d out of range", s)
		}
	}

	switch op {
	case ir.OpConstString:
		if spec.String == nil {
			return nil, fmt.Errorf("const-string requires a string operand")
		}
		in.Str = table.String(*spec.String)
	case ir.OpConstClass, ir.OpNewInstance, ir.OpCheckCast:
		if spec.Type == "" {
			return nil, fmt.Errorf("%s requires a type operand", spec.Op)
		}
		in.Type = table.Type(spec.Type)
	case ir.OpInvokeVirtual, ir.OpInvokeStatic, ir.OpInvokeDirect:
		callee, err := parseMethodRef(spec.Callee, table)
		if err != nil {
			return nil, err
		}
		in.Callee = callee
	case ir.OpFieldGet, ir.OpFieldPut:
		field, err := parseFieldRef(spec.Field, table)
		if err != nil {
			return nil, err
		}
		in.Field = field
	}
	if op == ir.OpCheckCast && len(in.Srcs) == 0 {
		// check-cast without an explicit src narrows in place.
		if !in.HasDest {
			return nil, fmt.Errorf("check-cast requires dest or src")
		}
		in.Srcs = []ir.Reg{in.Dest}
	}
	return in, nil
}

// parseMethodRef parses "Ldecl/Class;->name".
func parseMethodRef(s string, table *symbols.Table) (*ir.MethodRef, error) {
	class, rest, ok := strings.Cut(s, "->")
	if !ok || class == "" || rest == "" {
		return nil, fmt.Errorf("malformed callee %q (want \"Lpkg/Class;->name\")", s)
	}
	return &ir.MethodRef{Class: table.Type(class), Name: table.String(rest)}, nil
}

// parseFieldRef parses "Ldecl/Class;->name:Ltype;".
func parseFieldRef(s string, table *symbols.Table) (*ir.FieldRef, error) {
	class, rest, ok := strings.Cut(s, "->")
	if !ok || class == "" {
		return nil, fmt.Errorf("malformed field %q (want \"Lpkg/Class;->name:Ltype;\")", s)
	}
	name, typ, ok := strings.Cut(rest, ":")
	if !ok || name == "" || typ == "" {
		return nil, fmt.Errorf("malformed field %q: missing type", s)
	}
	return &ir.FieldRef{Class: table.Type(class), Name: table.String(name), Type: table.Type(typ)}, nil
}
