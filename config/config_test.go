// SPDX-License-Identifier: Apache-2.0

package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()
	assert.Equal(t, ModeBaseline, cfg.EngineMode)
	assert.Equal(t, HeuristicDepthFirst, cfg.ExplorationHeuristic)
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesFromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "stflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine_mode = "shadow"
cycle_bound = 10
shadow_processing_mode = "both"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeShadow, cfg.EngineMode)
	assert.Equal(t, 10, cfg.CycleBound)
	assert.Equal(t, ShadowBoth, cfg.ShadowProcessingMode)
}

func TestRegisterFlags_OverridesFileDefaults(t *testing.T) {
	t.Parallel()
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"-cycle-bound=5", "-engine-mode=cbmc"}))
	assert.Equal(t, 5, cfg.CycleBound)
	assert.Equal(t, ModeCBMC, cfg.EngineMode)
}
