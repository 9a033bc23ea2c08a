// Package symbols provides canonical, pointer-comparable identities for the
// type descriptors and string literals referenced by analyzed bytecode.
//
// Every descriptor and literal is interned exactly once per Table, so two
// handles are equal iff their pointers are equal. Analyses over different
// methods may share one Table and intern concurrently.
package symbols

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// Type is the canonical identity of a class or primitive type, keyed by its
// JVM-style descriptor (e.g. "Ljava/lang/Class;").
type Type struct {
	Descriptor string
}

// ClassName returns the dotted source-level name for a class descriptor
// ("Ljava/lang/Class;" -> "java.lang.Class"). Non-class descriptors are
// returned unchanged.
func (t *Type) ClassName() string {
	d := t.Descriptor
	if len(d) < 2 || d[0] != 'L' || d[len(d)-1] != ';' {
		return d
	}
	return strings.ReplaceAll(d[1:len(d)-1], "/", ".")
}

func (t *Type) String() string { return t.Descriptor }

// String is the canonical identity of an interned string literal or member
// name.
type String struct {
	Value string
}

func (s *String) String() string { return s.Value }

// Table interns types and strings. The zero value is not usable; call
// NewTable.
type Table struct {
	types   *xsync.Map[string, *Type]
	strings *xsync.Map[string, *String]
}

// NewTable creates an empty interning table.
func NewTable() *Table {
	return &Table{
		types:   xsync.NewMap[string, *Type](),
		strings: xsync.NewMap[string, *String](),
	}
}

// Type returns the canonical identity for the given type descriptor,
// interning it on first use.
func (tb *Table) Type(descriptor string) *Type {
	if t, ok := tb.types.Load(descriptor); ok {
		return t
	}
	t, _ := tb.types.LoadOrStore(descriptor, &Type{Descriptor: descriptor})
	return t
}

// String returns the canonical identity for the given string value,
// interning it on first use.
func (tb *Table) String(value string) *String {
	if s, ok := tb.strings.Load(value); ok {
		return s
	}
	s, _ := tb.strings.LoadOrStore(value, &String{Value: value})
	return s
}

// TypeForName resolves a class-name string literal to a type identity. It
// accepts both dotted names ("java.lang.Baz") as produced by source code
// passing names to Class.forName, and raw descriptors ("Ljava/lang/Baz;").
func (tb *Table) TypeForName(name *String) *Type {
	if name == nil {
		return nil
	}
	v := name.Value
	if len(v) >= 2 && v[0] == 'L' && v[len(v)-1] == ';' {
		return tb.Type(v)
	}
	return tb.Type("L" + strings.ReplaceAll(v, ".", "/") + ";")
}
