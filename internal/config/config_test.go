package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
app:
  env: test
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, defaultNActions, cfg.Experiment.Defaults.NActions)
	assert.Equal(t, defaultBeta, cfg.Experiment.Defaults.Beta)
	assert.True(t, cfg.Data.ArchiveFeedback)
	assert.Equal(t, defaultNNMaxWeight, cfg.Experiment.Defaults.NN.MaxWeight)
}

func TestLoadExplicitZeroWins(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
data:
  archive_feedback: false
experiment:
  defaults:
    beta: 0
    nn:
      max_weight: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 显式写 0 的键不应被默认值覆盖
	assert.False(t, cfg.Data.ArchiveFeedback)
	assert.Equal(t, 0.0, cfg.Experiment.Defaults.Beta)
	assert.Equal(t, 0.0, cfg.Experiment.Defaults.NN.MaxWeight)
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
app:
  log_level: debug
experiment:
  defaults:
    n_actions: 4
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
experiment:
  defaults:
    n_actions: 6
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 包含者覆盖被包含文件
	assert.Equal(t, 6, cfg.Experiment.Defaults.NActions)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadRewardCombo(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
experiment:
  defaults:
    reward_type: binary
    reward_function: linear
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logistic reward function")
}

func TestValidateSweep(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
sweep:
  enabled: true
  presets: []
`)
	_, err := Load(path)
	assert.Error(t, err)
}
