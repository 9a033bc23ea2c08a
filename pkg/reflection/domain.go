package reflection

import (
	"maps"

	"github.com/715d/reflectscan/pkg/ir"
)

// Level places a Domain in the standard three-level order
// Bottom < Value < Top.
type Level int

const (
	LevelBottom Level = iota
	LevelValue
	LevelTop
)

// Domain wraps an AbstractObject in the three-level domain. Bottom means
// "provably no value reaches here"; Top means "unknown". Only LevelValue
// carries a payload.
type Domain struct {
	Level Level
	obj   AbstractObject
}

// BottomDomain returns the Bottom element.
func BottomDomain() Domain { return Domain{Level: LevelBottom} }

// TopDomain returns the Top element.
func TopDomain() Domain { return Domain{Level: LevelTop} }

// ValueDomain wraps a precise value.
func ValueDomain(obj AbstractObject) Domain {
	return Domain{Level: LevelValue, obj: obj}
}

// Value returns the payload when the domain is at the value level.
func (d Domain) Value() (AbstractObject, bool) {
	if d.Level != LevelValue {
		return AbstractObject{}, false
	}
	return d.obj, true
}

// IsTop reports whether d is Top.
func (d Domain) IsTop() bool { return d.Level == LevelTop }

// IsBottom reports whether d is Bottom.
func (d Domain) IsBottom() bool { return d.Level == LevelBottom }

// Join returns the least upper bound of d and o.
func (d Domain) Join(o Domain) Domain {
	switch {
	case d.Level == LevelBottom:
		return o
	case o.Level == LevelBottom:
		return d
	case d.Level == LevelTop || o.Level == LevelTop:
		return TopDomain()
	}
	obj, prec := d.obj.Join(o.obj)
	return fromPrecision(obj, prec)
}

// Meet returns the greatest lower bound of d and o.
func (d Domain) Meet(o Domain) Domain {
	switch {
	case d.Level == LevelTop:
		return o
	case o.Level == LevelTop:
		return d
	case d.Level == LevelBottom || o.Level == LevelBottom:
		return BottomDomain()
	}
	obj, prec := d.obj.Meet(o.obj)
	return fromPrecision(obj, prec)
}

// Leq reports whether d is at least as precise as o.
func (d Domain) Leq(o Domain) bool {
	switch {
	case d.Level == LevelBottom || o.Level == LevelTop:
		return true
	case d.Level == LevelTop || o.Level == LevelBottom:
		return false
	}
	return d.obj.Leq(o.obj)
}

// Equal reports domain equality.
func (d Domain) Equal(o Domain) bool {
	if d.Level != o.Level {
		return false
	}
	if d.Level != LevelValue {
		return true
	}
	return d.obj.Equals(o.obj)
}

func fromPrecision(obj AbstractObject, prec Precision) Domain {
	switch prec {
	case PrecisionValue:
		return ValueDomain(obj)
	case PrecisionTop:
		return TopDomain()
	}
	return BottomDomain()
}

// ClassSource records by what kind of operation a Class handle was
// produced.
type ClassSource int

const (
	// SourceNonReflective marks class handles produced by ordinary type
	// flow: parameter loading, field reads.
	SourceNonReflective ClassSource = iota
	// SourceReflective marks class handles produced by reflective
	// operations like const-class or Class.forName().
	SourceReflective
)

func (s ClassSource) String() string {
	if s == SourceReflective {
		return "reflective"
	}
	return "non-reflective"
}

// sourceDomain is the flat constant domain over ClassSource: joining two
// different sources loses the provenance (Top) rather than picking one.
type sourceDomain struct {
	level Level
	src   ClassSource
}

func bottomSource() sourceDomain             { return sourceDomain{level: LevelBottom} }
func topSource() sourceDomain                { return sourceDomain{level: LevelTop} }
func constSource(s ClassSource) sourceDomain { return sourceDomain{level: LevelValue, src: s} }

func (s sourceDomain) value() (ClassSource, bool) {
	return s.src, s.level == LevelValue
}

func (s sourceDomain) join(o sourceDomain) sourceDomain {
	switch {
	case s.level == LevelBottom:
		return o
	case o.level == LevelBottom:
		return s
	case s.level == LevelTop || o.level == LevelTop:
		return topSource()
	case s.src == o.src:
		return s
	}
	return topSource()
}

func (s sourceDomain) equal(o sourceDomain) bool {
	if s.level != o.level {
		return false
	}
	return s.level != LevelValue || s.src == o.src
}

// ResultReg is the pseudo-register holding the pending result between an
// invoke and the following move-result.
const ResultReg = ^ir.Reg(0)

// binding is the per-register abstract fact: the value domain plus, for
// Class-kind values, the provenance domain. The provenance of a non-Class
// binding is always Bottom; bindings are only formed through setValue,
// which enforces that.
type binding struct {
	dom Domain
	src sourceDomain
}

func (b binding) join(o binding) binding {
	return binding{dom: b.dom.Join(o.dom), src: b.src.join(o.src)}
}

func (b binding) equal(o binding) bool {
	return b.dom.Equal(o.dom) && b.src.equal(o.src)
}

// state maps registers to bindings. Absent registers are Bottom ("no
// information has reached this point"), which joins away harmlessly.
type state struct {
	regs map[ir.Reg]binding
}

func newState() state {
	return state{regs: make(map[ir.Reg]binding)}
}

func (s state) get(reg ir.Reg) binding {
	if b, ok := s.regs[reg]; ok {
		return b
	}
	return binding{dom: BottomDomain(), src: bottomSource()}
}

// setValue binds a register to a precise value. The provenance is attached
// only when the value is Class-kind; callers passing a source for any other
// kind indicate an engine bug.
func (s state) setValue(reg ir.Reg, obj AbstractObject, src sourceDomain) {
	if obj.Kind != KindClass && src.level == LevelValue {
		panic("reflection: provenance tag on a non-Class value")
	}
	if obj.Kind != KindClass {
		src = bottomSource()
	}
	s.regs[reg] = binding{dom: ValueDomain(obj), src: src}
}

// setTop destroys any knowledge of the register.
func (s state) setTop(reg ir.Reg) {
	s.regs[reg] = binding{dom: TopDomain(), src: topSource()}
}

func (s state) setBinding(reg ir.Reg, b binding) {
	s.regs[reg] = b
}

func (s state) clone() state {
	return state{regs: maps.Clone(s.regs)}
}

// join returns a fresh state that is the register-wise least upper bound.
func (s state) join(o state) state {
	out := state{regs: make(map[ir.Reg]binding, len(s.regs)+len(o.regs))}
	for reg, b := range s.regs {
		out.regs[reg] = b.join(o.get(reg))
	}
	for reg, b := range o.regs {
		if _, seen := s.regs[reg]; !seen {
			out.regs[reg] = b
		}
	}
	return out
}

func (s state) equal(o state) bool {
	bot := binding{dom: BottomDomain(), src: bottomSource()}
	for reg, b := range s.regs {
		if !b.equal(o.get(reg)) {
			return false
		}
	}
	for reg, b := range o.regs {
		if _, seen := s.regs[reg]; !seen && !b.equal(bot) {
			return false
		}
	}
	return true
}
