// SPDX-License-Identifier: Apache-2.0

// Command stflow drives the symbolic execution engine over a lowered
// program graph and emits a coverage summary plus, optionally, a derived
// test suite (§6.4). Parsing the surface control-program language and
// lowering it to an ir.Program is outside this module's scope (§1); this
// CLI exercises the engine against a small built-in demonstration program
// until a real lowerer is wired in ahead of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"stflow/config"
	"stflow/engine"
	"stflow/ir"
	"stflow/logging"
	"stflow/testsuite"

	"github.com/joeycumines/logiface"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "stflow: fatal: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("stflow", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file (§6.2)")
	outPath := fs.String("out", "", "path to write the derived test-suite XML (stdout if unset)")

	cfg := config.Default()
	config.RegisterFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	loaded, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Parse again over the loaded file so that flags win over it.
	cfg = loaded
	if err := fs.Parse(args); err != nil {
		return err
	}

	logging.Configure(os.Stderr, resolveLevel(cfg.LogLevel))

	program, err := demoProgram()
	if err != nil {
		return err
	}

	e, err := engine.New(program, cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	ctx, cancel = engine.WithTimeout(ctx, cfg.TimeOut.Duration)
	defer cancel()

	report, err := e.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(report)

	if cfg.GenerateTestSuite {
		if err := writeSuite(e, program, report, *outPath); err != nil {
			return err
		}
	}
	return nil
}

func resolveLevel(level string) logiface.Level {
	switch level {
	case "debug":
		return logiface.LevelDebug
	case "warning":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// demoProgram is a stand-in for a real lowerer's output: a single cyclic
// program graph with one whole-program input and a data-dependent branch,
// enough to exercise forking, merging, and test-suite derivation end to
// end (§6.4 is explicit that wiring an actual parser is out of scope).
func demoProgram() (*ir.Program, error) {
	graph := &ir.Graph{
		Name:  "P",
		Kind:  ir.ProgramKind,
		Entry: 0,
		Exit:  4,
		Interface: []ir.InterfaceEntry{
			{Name: "P.in", DataType: ir.Integer, StorageClass: ir.Input},
			{Name: "P.out", DataType: ir.Integer, StorageClass: ir.Local, HasInitializer: true,
				Initializer: ir.Constant{DataType: ir.Integer, IntValue: 0}},
		},
		Instructions: map[ir.Label]ir.Instr{
			0: &ir.IfInstr{
				Cond: &ir.BinaryExpr{
					Op:    ir.Gt,
					Left:  &ir.VariableAccess{Name: "in", DataType: ir.Integer},
					Right: ir.Constant{DataType: ir.Integer, IntValue: 0},
				},
				GotoTrue:  1,
				GotoFalse: 2,
			},
			1: &ir.AssignInstr{Lhs: "out", Expr: ir.Constant{DataType: ir.Integer, IntValue: 1}, Goto: 3},
			2: &ir.AssignInstr{Lhs: "out", Expr: ir.Constant{DataType: ir.Integer, IntValue: -1}, Goto: 3},
			3: &ir.GotoInstr{Target: 4},
		},
	}
	return ir.NewProgram([]*ir.Graph{graph})
}

func printSummary(report *engine.Report) {
	bold := color.New(color.Bold)
	bold.Println("stflow exploration summary")
	fmt.Printf("  cycles explored:       %d\n", report.Cycles)
	fmt.Printf("  terminated contexts:   %d\n", len(report.Terminated))
	fmt.Printf("  statement coverage:    %d/%d\n", report.StatementCoverage, report.TotalStatements)
	fmt.Printf("  branch coverage:       %d\n", report.BranchCoverage)
	if report.Diagnostics != nil {
		color.New(color.FgYellow).Printf("  diagnostics (non-fatal): %v\n", report.Diagnostics)
	}
}

func writeSuite(e *engine.Engine, program *ir.Program, report *engine.Report, outPath string) error {
	suite := testsuite.Suite{}
	for _, ctx := range report.Terminated {
		testCase, err := testsuite.Derive(e.Facade, program, ctx)
		if err != nil {
			logging.L.Warning().Err(err).Log("skipping a terminated context that failed test-case derivation")
			continue
		}
		suite.Cases = append(suite.Cases, testCase)
	}

	encoded, err := testsuite.Encode(suite)
	if err != nil {
		return err
	}

	if outPath == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}
