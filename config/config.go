// SPDX-License-Identifier: Apache-2.0

// Package config loads the engine's configuration (§6.2): a TOML file
// parsed with github.com/BurntSushi/toml, layered under command-line flag
// overrides, matching the teacher's "file defaults, flags win" convention.
package config

import (
	"flag"
	"time"

	"github.com/BurntSushi/toml"

	"stflow/diagnostic"
)

// EngineMode selects the Executor/Merger flavor pairing (§6.2 engine_mode).
type EngineMode string

const (
	ModeBaseline          EngineMode = "baseline"
	ModeOverApproximating EngineMode = "over-approximating"
	ModeCompositional     EngineMode = "compositional"
	ModeShadow            EngineMode = "shadow"
	ModeCBMC              EngineMode = "cbmc"
)

// ExplorationHeuristic selects the worklist pop order (§6.2).
type ExplorationHeuristic string

const (
	HeuristicDepthFirst   ExplorationHeuristic = "depth-first"
	HeuristicBreadthFirst ExplorationHeuristic = "breadth-first"
)

// MergeStrategy selects when buffered contexts are flushed (§6.2).
type MergeStrategy string

const (
	MergeAtAllJoinPoints MergeStrategy = "at-all-join-points"
	MergeOnlyAtCycleEnd  MergeStrategy = "only-at-cycle-end"
)

// ShadowProcessingMode selects the divergence-aware processing mode (§6.2,
// §4.6), used only when EngineMode is ModeShadow.
type ShadowProcessingMode string

const (
	ShadowNone ShadowProcessingMode = "none"
	ShadowOld  ShadowProcessingMode = "old"
	ShadowNew  ShadowProcessingMode = "new"
	ShadowBoth ShadowProcessingMode = "both"
)

// Config is the engine's full set of run-time options (§6.2).
type Config struct {
	EngineMode           EngineMode           `toml:"engine_mode"`
	StepSize             int                  `toml:"step_size"`
	ExplorationHeuristic ExplorationHeuristic `toml:"exploration_heuristic"`
	EncodingMode         string               `toml:"encoding_mode"`
	ExecutionMode        string               `toml:"execution_mode"`
	SummarizationMode    string               `toml:"summarization_mode"`
	BlockEncoding        bool                 `toml:"block_encoding"`
	MergeStrategy        MergeStrategy        `toml:"merge_strategy"`
	ShadowProcessingMode ShadowProcessingMode `toml:"shadow_processing_mode"`
	CycleBound           int                  `toml:"cycle_bound"`
	TimeOut              Duration             `toml:"time_out"`
	GenerateTestSuite    bool                 `toml:"generate_test_suite"`
	UnreachableLabels    []string             `toml:"unreachable_labels"`
	UnreachableBranches  []string             `toml:"unreachable_branches"`
	Seed                 int64                `toml:"seed"`
	LogLevel             string               `toml:"log_level"`
}

// Duration wraps time.Duration so it can parse from a TOML string like
// "30s", matching the teacher's preference for human-readable durations in
// configuration over raw nanosecond integers.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler, which BurntSushi/toml
// consults for string-valued fields.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration's built-in defaults (§6.2), used as the
// base a TOML file and then flags are layered onto.
func Default() Config {
	return Config{
		EngineMode:           ModeBaseline,
		StepSize:             1,
		ExplorationHeuristic: HeuristicDepthFirst,
		MergeStrategy:        MergeOnlyAtCycleEnd,
		ShadowProcessingMode: ShadowNone,
		CycleBound:           0,
		TimeOut:              Duration{0},
		GenerateTestSuite:    true,
		Seed:                 1,
		LogLevel:             "info",
	}
}

// Load reads a TOML configuration file, returning the Default() with every
// field the file sets overridden. An empty path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, diagnostic.Structural("<config>", "failed to load configuration from %s: %v", path, err)
	}
	return cfg, nil
}

// RegisterFlags binds command-line flags that override cfg's fields,
// mirroring the teacher's "flags win over file" layering. Call Parse on fs
// after RegisterFlags to apply overrides.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Func("engine-mode", "engine mode: baseline|over-approximating|compositional|shadow|cbmc", func(v string) error {
		cfg.EngineMode = EngineMode(v)
		return nil
	})
	fs.IntVar(&cfg.StepSize, "step-size", cfg.StepSize, "accepted but not read: the engine executes one instruction per step")
	fs.Func("exploration-heuristic", "worklist pop order: depth-first|breadth-first", func(v string) error {
		cfg.ExplorationHeuristic = ExplorationHeuristic(v)
		return nil
	})
	fs.Func("merge-strategy", "merge_strategy: at-all-join-points|only-at-cycle-end", func(v string) error {
		cfg.MergeStrategy = MergeStrategy(v)
		return nil
	})
	fs.Func("shadow-processing-mode", "shadow_processing_mode: none|old|new|both", func(v string) error {
		cfg.ShadowProcessingMode = ShadowProcessingMode(v)
		return nil
	})
	fs.IntVar(&cfg.CycleBound, "cycle-bound", cfg.CycleBound, "maximum number of cycles to explore (0 = unbounded)")
	fs.Func("time-out", "wall-clock exploration budget, e.g. 30s (0 = unbounded)", func(v string) error {
		return cfg.TimeOut.UnmarshalText([]byte(v))
	})
	fs.BoolVar(&cfg.GenerateTestSuite, "generate-test-suite", cfg.GenerateTestSuite, "derive and emit a test suite from terminated contexts")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "deterministic seed for don't-care random valuations")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "structured logger level")
}
