package symbols

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTable_InterningIdentity verifies that interning the same descriptor
// twice yields the same pointer.
func TestTable_InterningIdentity(t *testing.T) {
	tb := NewTable()

	foo1 := tb.Type("LFoo;")
	foo2 := tb.Type("LFoo;")
	require.Same(t, foo1, foo2, "expected interned type identities to be pointer-equal")

	bar := tb.Type("LBar;")
	require.NotSame(t, foo1, bar)

	s1 := tb.String("hello")
	s2 := tb.String("hello")
	require.Same(t, s1, s2, "expected interned string identities to be pointer-equal")
}

// TestTable_ConcurrentInterning exercises the concurrency guarantee: many
// goroutines interning overlapping descriptors must agree on one identity.
func TestTable_ConcurrentInterning(t *testing.T) {
	tb := NewTable()

	const goroutines = 16
	const perGoroutine = 100

	results := make([][]*Type, goroutines)
	var wg sync.WaitGroup
	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]*Type, perGoroutine)
			for i := range perGoroutine {
				local[i] = tb.Type(fmt.Sprintf("LType%d;", i))
			}
			results[g] = local
		}()
	}
	wg.Wait()

	for g := 1; g < goroutines; g++ {
		for i := range perGoroutine {
			require.Same(t, results[0][i], results[g][i])
		}
	}
}

// TestTable_TypeForName tests resolution of class-name literals to types.
func TestTable_TypeForName(t *testing.T) {
	tb := NewTable()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "dotted name", in: "java.lang.Baz", want: "Ljava/lang/Baz;"},
		{name: "simple name", in: "Baz", want: "LBaz;"},
		{name: "raw descriptor", in: "Ljava/lang/Baz;", want: "Ljava/lang/Baz;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tb.TypeForName(tb.String(tt.in))
			require.Same(t, tb.Type(tt.want), got)
		})
	}

	require.Nil(t, tb.TypeForName(nil))
}

// TestType_ClassName tests descriptor-to-source-name conversion.
func TestType_ClassName(t *testing.T) {
	tb := NewTable()
	require.Equal(t, "java.lang.Class", tb.JavaLangClass().ClassName())
	require.Equal(t, "I", tb.Type("I").ClassName())
}

// TestTable_WellKnown verifies the lazily interned well-known identities.
func TestTable_WellKnown(t *testing.T) {
	tb := NewTable()
	require.Same(t, tb.Type(ClassDescriptor), tb.JavaLangClass())
	require.Same(t, tb.String("forName"), tb.NameForName())
	require.Same(t, tb.String("getDeclaredMethod"), tb.NameGetDeclaredMethod())
}
