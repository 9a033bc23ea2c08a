// Package harness provides fixture-driven integration testing for the
// reflection analysis. Each testdata fixture pairs method bodies with the
// reflection sites the analysis is expected to report, so end-to-end
// behavior is validated without hand-building IR in test code.
package harness

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/715d/reflectscan/internal/irload"
	"github.com/715d/reflectscan/pkg/ir"
	"github.com/715d/reflectscan/pkg/reflection"
	"github.com/715d/reflectscan/pkg/symbols"
)

// Case is one fixture file with its expectations.
type Case struct {
	// Name is the fixture file name, used as the subtest name.
	Name string `yaml:"-"`

	// Path is the fixture file location.
	Path string `yaml:"-"`

	// Expect lists the expected reflection sites per method. Methods with
	// no entry are expected to report none.
	Expect []MethodExpect `yaml:"expect"`
}

// MethodExpect lists the sites expected for one method.
type MethodExpect struct {
	// Method is the method name as declared in the fixture.
	Method string `yaml:"method"`

	// Sites are the expected reflective calls, in instruction order.
	Sites []SiteExpect `yaml:"sites"`
}

// SiteExpect describes one expected reflective call.
type SiteExpect struct {
	// Block is the label of the containing basic block.
	Block string `yaml:"block"`

	// Call identifies the call as "<op> <class>.<name>".
	Call string `yaml:"call"`

	// Bindings maps register names ("v0", ..., or "result") to the
	// expected rendering of the tracked value, e.g.
	// `Class(LFoo;) [reflective]`.
	Bindings map[string]string `yaml:"bindings,omitempty"`
}

// LoadCase reads a fixture's expectation section.
func LoadCase(t *testing.T, path string) *Case {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var c Case
	require.NoError(t, yaml.Unmarshal(data, &c), "parsing expectations of %s", path)
	c.Path = path
	return &c
}

// Harness runs fixture cases against the analyzer.
type Harness struct {
	table *symbols.Table
}

// NewHarness creates a harness with a fresh symbol table shared by all
// methods of a case.
func NewHarness() *Harness {
	return &Harness{table: symbols.NewTable()}
}

// Result is the outcome of running one case.
type Result struct {
	// Success indicates whether every method matched its expectation.
	Success bool

	// Message summarizes the outcome.
	Message string

	// Details lists individual mismatches.
	Details []string
}

// Run loads the case's methods, analyzes each, and compares the reported
// sites against the expectations.
func (h *Harness) Run(t *testing.T, c *Case) *Result {
	t.Helper()

	methods, err := irload.LoadFile(c.Path, h.table)
	require.NoError(t, err)

	expected := make(map[string][]SiteExpect, len(c.Expect))
	for _, e := range c.Expect {
		expected[e.Method] = e.Sites
	}

	res := &Result{Success: true}
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		seen[m.Name] = true
		analysis := reflection.Analyze(m, h.table)
		validateMethod(res, m.Name, expected[m.Name], analysis.ReflectionSites())
	}

	// Expectations naming absent methods are fixture bugs.
	for name := range expected {
		if !seen[name] {
			res.Success = false
			res.Details = append(res.Details, fmt.Sprintf("%s: expectation for method not in fixture", name))
		}
	}

	sort.Strings(res.Details)
	if res.Success {
		res.Message = fmt.Sprintf("all %d methods matched", len(methods))
	} else {
		res.Message = fmt.Sprintf("%d mismatches:\n  %s", len(res.Details), strings.Join(res.Details, "\n  "))
	}
	return res
}

func validateMethod(res *Result, method string, expected []SiteExpect, actual []reflection.Site) {
	fail := func(format string, args ...any) {
		res.Success = false
		res.Details = append(res.Details, method+": "+fmt.Sprintf(format, args...))
	}

	if len(actual) != len(expected) {
		fail("got %d reflection sites, expected %d", len(actual), len(expected))
	}

	for i, exp := range expected {
		if i >= len(actual) {
			fail("missing site %q in block %q", exp.Call, exp.Block)
			continue
		}
		act := actual[i]
		if got := act.Insn.Block().Label; got != exp.Block {
			fail("site %d in block %q, expected %q", i, got, exp.Block)
		}
		if got := formatCall(act.Insn); got != exp.Call {
			fail("site %d is %q, expected %q", i, got, exp.Call)
		}
		validateBindings(fail, i, exp.Bindings, act.Bindings)
	}
	for i := len(expected); i < len(actual); i++ {
		fail("unexpected site %q in block %q", formatCall(actual[i].Insn), actual[i].Insn.Block().Label)
	}
}

func validateBindings(fail func(string, ...any), site int, expected map[string]string, actual map[ir.Reg]reflection.Binding) {
	got := make(map[string]string, len(actual))
	for reg, b := range actual {
		got[regName(reg)] = formatBinding(b)
	}
	for key, want := range expected {
		have, ok := got[key]
		if !ok {
			fail("site %d: no binding for %s, expected %q", site, key, want)
			continue
		}
		if have != want {
			fail("site %d: %s = %s, expected %s", site, key, have, want)
		}
	}
	for key, have := range got {
		if _, ok := expected[key]; !ok {
			fail("site %d: unexpected binding %s = %s", site, key, have)
		}
	}
}

func regName(reg ir.Reg) string {
	if reg == reflection.ResultReg {
		return "result"
	}
	return fmt.Sprintf("v%d", reg)
}

func formatCall(in *ir.Instruction) string {
	if in.Callee == nil {
		return in.Op.String()
	}
	return fmt.Sprintf("%s %s.%s", in.Op, in.Callee.Class.ClassName(), in.Callee.Name)
}

func formatBinding(b reflection.Binding) string {
	s := b.Obj.String()
	if b.HasSource {
		s += " [" + b.Source.String() + "]"
	}
	return s
}
