package reflection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflectscan/pkg/symbols"
)

func testValues(tb *symbols.Table) []AbstractObject {
	foo := tb.Type("LFoo;")
	bar := tb.Type("LBar;")
	baz := tb.Type("LBaz;")
	name := tb.String("name")
	other := tb.String("other")
	return []AbstractObject{
		NewObject(foo),
		NewObject(bar),
		NewObject(nil),
		NewObject(nil).WithCandidates(NewTypeSet(foo, bar)),
		NewObject(nil).WithCandidates(NewTypeSet(foo, baz)),
		NewClass(foo),
		NewClass(baz),
		NewClass(nil),
		NewString(name),
		NewString(other),
		NewMember(KindField, foo, name),
		NewMember(KindField, bar, name),
		NewMember(KindField, foo, other),
		NewMember(KindMethod, foo, name),
		NewUnknownMember(KindField, foo),
		NewUnknownMember(KindMethod, nil),
	}
}

// TestAbstractObject_LeqReflexive checks leq(a, a) for every sample value.
func TestAbstractObject_LeqReflexive(t *testing.T) {
	for _, a := range testValues(symbols.NewTable()) {
		require.True(t, a.Leq(a), "expected %s leq itself", a)
	}
}

// TestAbstractObject_LeqAntisymmetric checks that mutual leq implies
// structural equality.
func TestAbstractObject_LeqAntisymmetric(t *testing.T) {
	values := testValues(symbols.NewTable())
	for _, a := range values {
		for _, b := range values {
			if a.Leq(b) && b.Leq(a) {
				require.True(t, a.Equals(b), "%s and %s mutually leq but not equal", a, b)
			}
		}
	}
}

// TestAbstractObject_JoinCommutative checks join(a, b) == join(b, a) up to
// Equals, including the escalation level.
func TestAbstractObject_JoinCommutative(t *testing.T) {
	values := testValues(symbols.NewTable())
	for _, a := range values {
		for _, b := range values {
			ab, pab := a.Join(b)
			ba, pba := b.Join(a)
			require.Equal(t, pab, pba, "join precision differs for %s and %s", a, b)
			if pab == PrecisionValue {
				require.True(t, ab.Equals(ba), "join(%s, %s) = %s but join(%s, %s) = %s", a, b, ab, b, a, ba)
			}
		}
	}
}

// TestAbstractObject_JoinAssociative checks associativity of join over the
// enclosing domain (escalation to Top is absorbing, so compare at the
// domain level).
func TestAbstractObject_JoinAssociative(t *testing.T) {
	values := testValues(symbols.NewTable())
	for _, a := range values {
		for _, b := range values {
			for _, c := range values {
				da, db, dc := ValueDomain(a), ValueDomain(b), ValueDomain(c)
				left := da.Join(db).Join(dc)
				right := da.Join(db.Join(dc))
				require.True(t, left.Equal(right),
					"(%s ⊔ %s) ⊔ %s differs from %s ⊔ (%s ⊔ %s)", a, b, c, a, b, c)
			}
		}
	}
}

// TestAbstractObject_JoinIdempotent checks join(a, a) == a.
func TestAbstractObject_JoinIdempotent(t *testing.T) {
	for _, a := range testValues(symbols.NewTable()) {
		joined, prec := a.Join(a)
		require.Equal(t, PrecisionValue, prec)
		require.True(t, joined.Equals(a), "join(%s, %s) = %s", a, a, joined)
	}
}

// TestAbstractObject_JoinIsUpperBound checks a leq join(a, b) and
// b leq join(a, b) whenever the join stays at the value level.
func TestAbstractObject_JoinIsUpperBound(t *testing.T) {
	values := testValues(symbols.NewTable())
	for _, a := range values {
		for _, b := range values {
			joined, prec := a.Join(b)
			if prec != PrecisionValue {
				continue
			}
			require.True(t, a.Leq(joined), "%s not leq join %s", a, joined)
			require.True(t, b.Leq(joined), "%s not leq join %s", b, joined)
		}
	}
}

// TestAbstractObject_MeetIsGreatestLowerBound checks that the meet is a
// lower bound of both operands and an upper bound of every common lower
// bound in the sample set.
func TestAbstractObject_MeetIsGreatestLowerBound(t *testing.T) {
	values := testValues(symbols.NewTable())
	for _, a := range values {
		for _, b := range values {
			met, prec := a.Meet(b)
			if prec != PrecisionValue {
				continue
			}
			require.True(t, met.Leq(a), "meet(%s, %s) = %s not leq %s", a, b, met, a)
			require.True(t, met.Leq(b), "meet(%s, %s) = %s not leq %s", a, b, met, b)
			for _, x := range values {
				if x.Leq(a) && x.Leq(b) {
					require.True(t, x.Leq(met), "%s below %s and %s but not below their meet %s", x, a, b, met)
				}
			}
		}
	}
}

// TestAbstractObject_JoinDivergentTypes checks that merging same-kind
// values of different types accumulates both types as candidates instead
// of escalating.
func TestAbstractObject_JoinDivergentTypes(t *testing.T) {
	tb := symbols.NewTable()
	typeA := tb.Type("LA;")
	typeB := tb.Type("LB;")

	joined, prec := NewObject(typeA).Join(NewObject(typeB))
	require.Equal(t, PrecisionValue, prec)
	require.Equal(t, KindObject, joined.Kind)
	require.Nil(t, joined.Type, "merged type should be unconstrained")
	require.True(t, joined.Candidates.Contains(typeA))
	require.True(t, joined.Candidates.Contains(typeB))

	// Candidate sets of the operands flow into the result too.
	typeC := tb.Type("LC;")
	withCands := NewObject(typeA).WithCandidates(NewTypeSet(typeC))
	joined, prec = withCands.Join(NewObject(typeB))
	require.Equal(t, PrecisionValue, prec)
	require.True(t, joined.Candidates.Contains(typeC))
}

// TestAbstractObject_JoinEscalates checks the combinations that cannot stay
// at the value level.
func TestAbstractObject_JoinEscalates(t *testing.T) {
	tb := symbols.NewTable()
	foo := tb.Type("LFoo;")
	name := tb.String("a")
	other := tb.String("b")

	tests := []struct {
		name string
		a, b AbstractObject
	}{
		{name: "kind mismatch", a: NewObject(foo), b: NewClass(foo)},
		{name: "string literals differ", a: NewString(name), b: NewString(other)},
		{name: "field vs method", a: NewMember(KindField, foo, name), b: NewMember(KindMethod, foo, name)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, prec := tt.a.Join(tt.b)
			require.Equal(t, PrecisionTop, prec)
			_, prec = tt.a.Meet(tt.b)
			require.Equal(t, PrecisionBottom, prec)
		})
	}
}

// TestAbstractObject_JoinGeneralizesMembers checks that same-kind member
// values disagreeing on name or declaring class generalize to the wildcard
// form instead of escalating, while their meet stays contradictory.
func TestAbstractObject_JoinGeneralizesMembers(t *testing.T) {
	tb := symbols.NewTable()
	foo := tb.Type("LFoo;")
	bar := tb.Type("LBar;")
	name := tb.String("a")
	other := tb.String("b")

	joined, prec := NewMember(KindField, foo, name).Join(NewMember(KindField, foo, other))
	require.Equal(t, PrecisionValue, prec)
	require.True(t, joined.Equals(NewUnknownMember(KindField, foo)))

	joined, prec = NewMember(KindMethod, foo, name).Join(NewMember(KindMethod, bar, name))
	require.Equal(t, PrecisionValue, prec)
	require.True(t, joined.Equals(NewMember(KindMethod, nil, name)))

	_, prec = NewMember(KindField, foo, name).Meet(NewMember(KindField, foo, other))
	require.Equal(t, PrecisionBottom, prec)
}

// TestAbstractObject_JoinOrderIndependence checks that a fold of joins does
// not depend on association: merging an unconstrained value into an
// already-merged pair must keep the accumulated candidate types.
func TestAbstractObject_JoinOrderIndependence(t *testing.T) {
	tb := symbols.NewTable()
	foo := tb.Type("LFoo;")
	bar := tb.Type("LBar;")
	name := tb.String("a")
	other := tb.String("b")

	t.Run("unconstrained object joined last or first", func(t *testing.T) {
		ab, prec := NewObject(foo).Join(NewObject(bar))
		require.Equal(t, PrecisionValue, prec)
		left, prec := ab.Join(NewObject(nil))
		require.Equal(t, PrecisionValue, prec)

		bu, prec := NewObject(bar).Join(NewObject(nil))
		require.Equal(t, PrecisionValue, prec)
		right, prec := NewObject(foo).Join(bu)
		require.Equal(t, PrecisionValue, prec)

		require.True(t, left.Equals(right), "join of {Foo, Bar, ?} depends on association: %s vs %s", left, right)
		require.True(t, left.Candidates.Contains(foo))
		require.True(t, left.Candidates.Contains(bar))
	})

	t.Run("wildcard member joined last or first", func(t *testing.T) {
		known := NewMember(KindField, foo, name)
		renamed := NewMember(KindField, foo, other)
		wildcard := NewUnknownMember(KindField, foo)

		kr, prec := known.Join(renamed)
		require.Equal(t, PrecisionValue, prec)
		left, prec := kr.Join(wildcard)
		require.Equal(t, PrecisionValue, prec)

		rw, prec := renamed.Join(wildcard)
		require.Equal(t, PrecisionValue, prec)
		right, prec := known.Join(rw)
		require.Equal(t, PrecisionValue, prec)

		require.True(t, left.Equals(right), "join of field handles depends on association: %s vs %s", left, right)
		require.True(t, left.Equals(wildcard))
	})
}

// TestAbstractObject_ConstructorInvariants checks the fail-fast behavior on
// malformed value construction.
func TestAbstractObject_ConstructorInvariants(t *testing.T) {
	tb := symbols.NewTable()
	foo := tb.Type("LFoo;")

	require.Panics(t, func() { NewString(nil) })
	require.Panics(t, func() { NewMember(KindField, foo, nil) })
	require.Panics(t, func() { NewMember(KindObject, foo, tb.String("x")) })
	require.Panics(t, func() { NewUnknownMember(KindClass, foo) })
}

// TestAbstractObject_UnknownMemberIsWildcard checks that an unconstrained
// member generalizes any member of the same kind and class.
func TestAbstractObject_UnknownMemberIsWildcard(t *testing.T) {
	tb := symbols.NewTable()
	foo := tb.Type("LFoo;")

	known := NewMember(KindField, foo, tb.String("f"))
	unknown := NewUnknownMember(KindField, foo)
	anyClass := NewUnknownMember(KindField, nil)

	require.True(t, known.Leq(unknown))
	require.True(t, unknown.Leq(anyClass))
	require.False(t, unknown.Leq(known))

	joined, prec := known.Join(unknown)
	require.Equal(t, PrecisionValue, prec)
	require.True(t, joined.Equals(unknown))
}

// TestAbstractObject_IsReflectionOutput classifies each kind.
func TestAbstractObject_IsReflectionOutput(t *testing.T) {
	tb := symbols.NewTable()
	foo := tb.Type("LFoo;")

	require.False(t, NewObject(foo).IsReflectionOutput())
	require.False(t, NewString(tb.String("s")).IsReflectionOutput())
	require.True(t, NewClass(foo).IsReflectionOutput())
	require.True(t, NewUnknownMember(KindField, foo).IsReflectionOutput())
	require.True(t, NewUnknownMember(KindMethod, foo).IsReflectionOutput())
}
