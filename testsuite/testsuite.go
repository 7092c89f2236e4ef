// SPDX-License-Identifier: Apache-2.0

// Package testsuite implements test-suite derivation (C11): solving a
// terminated context's path constraint, extracting a model, and emitting
// the initial concrete valuation plus per-cycle input bindings as an XML
// document (§4.7, RT1 round-trip law). Coverage is summarised separately by
// CoverageReport.
package testsuite

import (
	"encoding/xml"
	"sort"

	"stflow/diagnostic"
	"stflow/explore"
	"stflow/ir"
	"stflow/smt"
	"stflow/state"
)

// Binding is one named concrete value in a derived test case.
type Binding struct {
	XMLName xml.Name `xml:"binding"`
	Name    string   `xml:"name,attr"`
	Value   int      `xml:"value,attr"`
}

// CycleInputs is the whole-program input bindings for one cycle.
type CycleInputs struct {
	XMLName xml.Name  `xml:"cycle"`
	Index   int       `xml:"index,attr"`
	Inputs  []Binding `xml:"binding"`
}

// TestCase is one derived test case: the initial concrete state plus the
// sequence of per-cycle whole-program input valuations needed to drive a
// program along the path a terminated context followed (§4.7).
type TestCase struct {
	XMLName xml.Name      `xml:"test-case"`
	Initial []Binding     `xml:"initial>binding"`
	Cycles  []CycleInputs `xml:"cycle"`
}

// Suite is the full derived test suite. It carries no coverage data; see
// CoverageReport.
type Suite struct {
	XMLName xml.Name   `xml:"test-suite"`
	Cases   []TestCase `xml:"test-case"`
}

// CoverageReport is the statement/branch coverage gathered during
// exploration (a supplemented feature beyond the distilled spec, mirroring
// ahorn's coverage-report output). It holds no reference to a Suite.
type CoverageReport struct {
	StatementsCovered int
	StatementsTotal   int
	BranchesCovered   int
}

// Derive builds a TestCase from a terminated context by solving its path
// constraint (or, for the CBMC flavor, the guarded assumptions reachable
// from its recorded literals) and reading every contextualized name's value
// out of the resulting model, falling back to the concrete store's own
// "don't care" value for any free symbol the model left unconstrained.
func Derive(facade *smt.Facade, program *ir.Program, ctx *state.Context) (TestCase, error) {
	exprs := ctx.State.PathConstraint
	if ctx.State.Assumptions != nil {
		exprs = append(append([]smt.Term(nil), exprs...), guardedAssumptionTerms(ctx.State.Assumptions)...)
	}

	result, model := facade.Check(exprs)
	if result == smt.Unsat {
		return TestCase{}, diagnostic.Structural(ctx.CurrentFrame().Graph,
			"cannot derive a test case: terminated context's path constraint is unsatisfiable")
	}

	entryGraph := program.Graphs[program.Entry]
	initial := bindingsForCycle(entryGraph, ctx, model, 0)

	var cycles []CycleInputs
	for cycle := 0; cycle <= ctx.Cycle; cycle++ {
		inputs := inputBindingsForCycle(entryGraph, ctx, model, cycle)
		if len(inputs) > 0 {
			cycles = append(cycles, CycleInputs{Index: cycle, Inputs: inputs})
		}
	}

	return TestCase{Initial: initial, Cycles: cycles}, nil
}

// guardedAssumptionTerms flattens every guarded assumption recorded in g
// into a single term slice, used to reconstruct a CBMC-flavor context's
// effective path constraint for solving.
func guardedAssumptionTerms(g *state.AssumptionGraph) []smt.Term {
	var out []smt.Term
	g.GuardedAssumptions.OrderedRange(func(_ string, terms []smt.Term) bool {
		out = append(out, terms...)
		return true
	})
	return out
}

func bindingsForCycle(graph *ir.Graph, ctx *state.Context, model smt.Model, cycle int) []Binding {
	var out []Binding
	for _, entry := range graph.Interface {
		version := ctx.State.Versions.Current(entry.Name)
		name := state.Contextualize(entry.Name, version, cycle)
		value, ok := resolveValue(ctx, model, name)
		if !ok {
			continue
		}
		out = append(out, Binding{Name: entry.Name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func inputBindingsForCycle(graph *ir.Graph, ctx *state.Context, model smt.Model, cycle int) []Binding {
	var out []Binding
	for _, entry := range graph.Interface {
		if entry.StorageClass != ir.Input {
			continue
		}
		name := state.Contextualize(entry.Name, 0, cycle)
		value, ok := resolveValue(ctx, model, name)
		if !ok {
			continue
		}
		out = append(out, Binding{Name: entry.Name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolveValue looks up name's value: the model first (it holds every free
// symbol the solver actually reasoned about), then the terminated context's
// own concrete store as a fallback for names the model left unconstrained
// (a "don't care" slot, §4.1).
func resolveValue(ctx *state.Context, model smt.Model, name string) (int, bool) {
	if model != nil {
		if v, ok := model[name]; ok {
			return v, true
		}
	}
	term, ok := ctx.State.Concrete.Get(name)
	if !ok {
		return 0, false
	}
	switch t := term.(type) {
	case *smt.IntLit:
		return t.Value, true
	case *smt.BoolLit:
		if t.Value {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// BuildCoverageReport builds a CoverageReport from the coverage counters
// gathered during exploration and the total statement count.
func BuildCoverageReport(coverage *explore.Coverage, total int) CoverageReport {
	return CoverageReport{
		StatementsCovered: coverage.StatementCount(),
		StatementsTotal:   total,
		BranchesCovered:   coverage.BranchCount(),
	}
}

// Encode marshals a Suite to indented XML (RT1: Decode(Encode(s)) must
// reproduce s, checked by testsuite_test.go).
func Encode(suite Suite) ([]byte, error) {
	out, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// Decode parses a Suite previously produced by Encode.
func Decode(data []byte) (Suite, error) {
	var suite Suite
	if err := xml.Unmarshal(data, &suite); err != nil {
		return Suite{}, err
	}
	// Unmarshal fills every XMLName field; clear them so the round trip is exact.
	suite.XMLName = xml.Name{}
	for i := range suite.Cases {
		c := &suite.Cases[i]
		c.XMLName = xml.Name{}
		for j := range c.Initial {
			c.Initial[j].XMLName = xml.Name{}
		}
		for j := range c.Cycles {
			c.Cycles[j].XMLName = xml.Name{}
			for k := range c.Cycles[j].Inputs {
				c.Cycles[j].Inputs[k].XMLName = xml.Name{}
			}
		}
	}
	return suite, nil
}
