package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsFillUnsetFields(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  env: prod
engine:
  default_max_weight: 0.8
`)
	cfg, err := Load(path)
	assert.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 0.8, cfg.Engine.DefaultMaxWeight)
	assert.Equal(t, 0.95, cfg.Engine.MaxUtilization)
	assert.Equal(t, 0.02, cfg.Engine.RebalanceThreshold)
	assert.Equal(t, 0.001, cfg.Costs.FeeRate)
	assert.Equal(t, 10000.0, cfg.Backtest.StartingCapital)
	assert.Equal(t, "synthetic", cfg.Source.Kind)
	assert.Equal(t, 365, cfg.Source.Synthetic.Steps)
	assert.Equal(t, 24*time.Hour, cfg.Source.Synthetic.Interval)
}

func TestLoad_ExplicitZeroSurvivesDefaulting(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
costs:
  fee_rate: 0
engine:
  rebalance_threshold: 0
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	// a deliberate zero is not overwritten by the default
	assert.Equal(t, 0.0, cfg.Costs.FeeRate)
	assert.Equal(t, 0.0, cfg.Engine.RebalanceThreshold)
}

func TestLoad_IncludeChain(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  env: base
  log_level: debug
costs:
  fee_rate: 0.002
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  env: prod
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	// the including file wins on conflicts, included values fill the rest
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 0.002, cfg.Costs.FeeRate)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad engine weight":   "engine:\n  default_max_weight: 1.5\n",
		"bad utilization":     "engine:\n  max_utilization: 0\n",
		"bad fee":             "costs:\n  fee_rate: 0.5\n",
		"bad capital":         "backtest:\n  starting_capital: -1\n",
		"csv without dir":     "source:\n  kind: csv\n",
		"unknown source kind": "source:\n  kind: parquet\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MaxWeightOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
engine:
  max_weight:
    vault-a: 0.4
    vault-b: 0.3
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Engine.MaxWeight["vault-a"])
	assert.Equal(t, 0.3, cfg.Engine.MaxWeight["vault-b"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
