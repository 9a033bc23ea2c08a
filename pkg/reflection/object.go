// Package reflection implements an intraprocedural constant-propagation
// analysis over the objects involved in reflective calls. For each
// instruction of a method it determines which registers hold string
// literals, class handles, field handles, or method handles, exposing the
// call sites whole-program transformations must treat as reflection.
//
// Example:
//
//	Bar bar = new Bar();                      --> Object(Bar)
//	Class fooCls = Foo.class;                 --> Class(Foo)
//	Class barCls = bar.getClass();            --> Class(Bar)
//	Field f = fooCls.getField("foo");         --> Field(Foo, "foo")
//	Method m = barCls.getMethod("bar");       --> Method(Bar, "bar")
//	String s = f.getName();                   --> String("foo")
//	Class baz = Class.forName("Baz");         --> Class(Baz)
//
// Method signatures are not tracked: f above may refer to any field named
// "foo" in Foo.
package reflection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/715d/reflectscan/pkg/symbols"
)

// Kind classifies an abstract value. Object and String are inputs of
// reflective operations; Class, Field, and Method are their outputs.
type Kind int

const (
	KindObject Kind = iota // instantiated locally, passed as a param, or read from the heap
	KindString             // a string literal
	KindClass              // a java.lang.Class handle
	KindField              // a java.lang.reflect.Field handle
	KindMethod             // a java.lang.reflect.Method handle
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "Object"
	case KindString:
		return "String"
	case KindClass:
		return "Class"
	case KindField:
		return "Field"
	case KindMethod:
		return "Method"
	}
	return "Unknown"
}

// TypeSet is an unordered set of type identities.
type TypeSet map[*symbols.Type]struct{}

// NewTypeSet builds a set from the given types, ignoring nils.
func NewTypeSet(types ...*symbols.Type) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		if t != nil {
			s[t] = struct{}{}
		}
	}
	return s
}

// Contains reports membership.
func (s TypeSet) Contains(t *symbols.Type) bool {
	_, ok := s[t]
	return ok
}

// Union returns a fresh set holding every element of s and o plus the given
// extra types. The receiver is never mutated.
func (s TypeSet) Union(o TypeSet, extra ...*symbols.Type) TypeSet {
	out := make(TypeSet, len(s)+len(o)+len(extra))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range o {
		out[t] = struct{}{}
	}
	for _, t := range extra {
		if t != nil {
			out[t] = struct{}{}
		}
	}
	return out
}

// Equal reports set equality.
func (s TypeSet) Equal(o TypeSet) bool {
	if len(s) != len(o) {
		return false
	}
	for t := range s {
		if !o.Contains(t) {
			return false
		}
	}
	return true
}

// Subset reports whether every element of s is in o.
func (s TypeSet) Subset(o TypeSet) bool {
	for t := range s {
		if !o.Contains(t) {
			return false
		}
	}
	return true
}

func (s TypeSet) clone() TypeSet {
	if len(s) == 0 {
		return nil
	}
	out := make(TypeSet, len(s))
	for t := range s {
		out[t] = struct{}{}
	}
	return out
}

// AbstractObject is the lattice value tracked per register.
//
// Which fields are meaningful depends on Kind: Object and Class carry Type
// (nil means unconstrained); String carries Name (the literal); Field and
// Method carry Type (the declaring class, nil when unknown) and Name (the
// member name, nil when not statically known). Candidates accumulates the
// possible types of an Object or Class value after merging control-flow
// paths that disagree on the exact type.
type AbstractObject struct {
	Kind       Kind
	Type       *symbols.Type
	Name       *symbols.String
	Candidates TypeSet
}

// NewObject returns an Object value of the given declared or instantiated
// type. A nil type means the object's type is unconstrained.
func NewObject(t *symbols.Type) AbstractObject {
	return AbstractObject{Kind: KindObject, Type: t}
}

// NewClass returns a Class value for the given type, nil meaning
// unconstrained.
func NewClass(t *symbols.Type) AbstractObject {
	return AbstractObject{Kind: KindClass, Type: t}
}

// NewString returns a String value for the given literal. The literal must
// be known; an unknown string is represented as Top in the enclosing
// domain, never as a String value without a name.
func NewString(s *symbols.String) AbstractObject {
	if s == nil {
		panic("reflection: String value requires a literal")
	}
	return AbstractObject{Kind: KindString, Name: s}
}

// NewMember returns a Field or Method value bound to a declaring class and
// member name. The name must be known; use NewUnknownMember when the name
// register did not hold a statically known string.
func NewMember(kind Kind, class *symbols.Type, name *symbols.String) AbstractObject {
	if kind != KindField && kind != KindMethod {
		panic(fmt.Sprintf("reflection: NewMember called with kind %s", kind))
	}
	if name == nil {
		panic(fmt.Sprintf("reflection: %s value requires a member name", kind))
	}
	return AbstractObject{Kind: kind, Type: class, Name: name}
}

// NewUnknownMember returns a Field or Method value whose member name is not
// statically known. The declaring class may also be nil when the receiver
// was untracked.
func NewUnknownMember(kind Kind, class *symbols.Type) AbstractObject {
	if kind != KindField && kind != KindMethod {
		panic(fmt.Sprintf("reflection: NewUnknownMember called with kind %s", kind))
	}
	return AbstractObject{Kind: kind, Type: class}
}

// WithCandidates returns a copy of the value carrying the given candidate
// set.
func (a AbstractObject) WithCandidates(s TypeSet) AbstractObject {
	a.Candidates = s.clone()
	return a
}

// Equals reports structural equality, comparing Candidates as an unordered
// set.
func (a AbstractObject) Equals(b AbstractObject) bool {
	return a.Kind == b.Kind &&
		a.Type == b.Type &&
		a.Name == b.Name &&
		a.Candidates.Equal(b.Candidates)
}

// Leq reports whether a is at least as precise as b. Values of different
// kinds are incomparable. Within a kind, a nil type or name on b acts as an
// unconstrained wildcard, and candidate sets are compared by inclusion.
func (a AbstractObject) Leq(b AbstractObject) bool {
	if a.Kind != b.Kind {
		return false
	}
	typeLeq := a.Type == b.Type || b.Type == nil
	nameLeq := a.Name == b.Name || b.Name == nil
	switch a.Kind {
	case KindObject, KindClass:
		return typeLeq && a.Candidates.Subset(b.Candidates)
	case KindString:
		return nameLeq
	default: // KindField, KindMethod
		return typeLeq && nameLeq
	}
}

// Precision tags the outcome of a lattice operation: whether the result is
// still a precise value, or escalated out of the value level of the
// enclosing domain.
type Precision int

const (
	PrecisionBottom Precision = iota // contradictory; provably no value
	PrecisionValue                   // the returned AbstractObject is meaningful
	PrecisionTop                     // no useful information retained
)

// Join computes a sound generalization of a and b. Same-kind Object and
// Class values stay at the value level: the type survives only when both
// operands agree on it, and both operands' types and candidate sets merge
// into the result's candidate set. Same-kind Field and Method values
// likewise generalize component-wise, each of type and name dropping to the
// unconstrained wildcard where the operands disagree. Differing kinds and
// differing string literals escalate to Top.
//
// The result depends only on the two operands, never on which one
// generalizes the other, so folding a join over any number of values is
// associative and the fixed point cannot depend on predecessor order.
func (a AbstractObject) Join(b AbstractObject) (AbstractObject, Precision) {
	if a.Equals(b) {
		return a, PrecisionValue
	}
	if a.Kind != b.Kind {
		return AbstractObject{}, PrecisionTop
	}
	switch a.Kind {
	case KindObject, KindClass:
		merged := AbstractObject{
			Kind:       a.Kind,
			Candidates: a.Candidates.Union(b.Candidates, a.Type, b.Type),
		}
		if a.Type == b.Type {
			merged.Type = a.Type
		}
		return merged, PrecisionValue
	case KindField, KindMethod:
		merged := AbstractObject{
			Kind:       a.Kind,
			Candidates: a.Candidates.Union(b.Candidates),
		}
		if a.Type == b.Type {
			merged.Type = a.Type
		}
		if a.Name == b.Name {
			merged.Name = a.Name
		}
		return merged, PrecisionValue
	}
	return AbstractObject{}, PrecisionTop
}

// Meet intersects the information in a and b; incompatible values meet to
// Bottom.
func (a AbstractObject) Meet(b AbstractObject) (AbstractObject, Precision) {
	switch {
	case a.Equals(b):
		return a, PrecisionValue
	case a.Leq(b):
		return a, PrecisionValue
	case b.Leq(a):
		return b, PrecisionValue
	}
	return AbstractObject{}, PrecisionBottom
}

// Widen is identical to Join: the per-method CFG is finite and the value
// lattice has no infinite ascending chains, so plain join terminates.
func (a AbstractObject) Widen(b AbstractObject) (AbstractObject, Precision) { return a.Join(b) }

// Narrow is identical to Meet.
func (a AbstractObject) Narrow(b AbstractObject) (AbstractObject, Precision) { return a.Meet(b) }

// IsReflectionOutput reports whether the value is the output of a
// reflective operation (a Class, Field, or Method handle) rather than an
// ordinary object or string input.
func (a AbstractObject) IsReflectionOutput() bool {
	switch a.Kind {
	case KindObject, KindString:
		return false
	}
	return true
}

func (a AbstractObject) clone() AbstractObject {
	a.Candidates = a.Candidates.clone()
	return a
}

func (a AbstractObject) String() string {
	var sb strings.Builder
	sb.WriteString(a.Kind.String())
	sb.WriteByte('(')
	switch a.Kind {
	case KindString:
		fmt.Fprintf(&sb, "%q", a.Name.Value)
	case KindObject, KindClass:
		if a.Type != nil {
			sb.WriteString(a.Type.Descriptor)
		} else {
			sb.WriteByte('?')
		}
	default:
		if a.Type != nil {
			sb.WriteString(a.Type.Descriptor)
		} else {
			sb.WriteByte('?')
		}
		sb.WriteString(", ")
		if a.Name != nil {
			fmt.Fprintf(&sb, "%q", a.Name.Value)
		} else {
			sb.WriteByte('?')
		}
	}
	if len(a.Candidates) > 0 {
		descs := make([]string, 0, len(a.Candidates))
		for t := range a.Candidates {
			descs = append(descs, t.Descriptor)
		}
		sort.Strings(descs)
		fmt.Fprintf(&sb, " in {%s}", strings.Join(descs, ", "))
	}
	sb.WriteByte(')')
	return sb.String()
}
