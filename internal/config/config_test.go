package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quorum.yaml", "app:\n  env: production\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, 0.20, cfg.Consensus.DeviationThreshold)
	assert.Equal(t, 90, cfg.Consensus.NoneVetoThreshold)
	assert.True(t, cfg.Consensus.StrictValidation)
	assert.Equal(t, 10, cfg.Consensus.MaxVetoPerMinute)
	assert.Equal(t, 3.0, cfg.Consensus.LeverageMin)
	assert.Equal(t, 75.0, cfg.Consensus.LeverageMax)
	assert.Equal(t, 2.0, cfg.Consensus.DynamicThreshold.Multiplier)
	assert.False(t, cfg.Consensus.DynamicThreshold.Enabled)
	assert.Equal(t, 30, cfg.Consensus.ProviderTimeoutSeconds)
	assert.True(t, cfg.Audit.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 300, cfg.Notify.CooldownSeconds)
	assert.False(t, cfg.Notify.Telegram.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "quorum", cfg.Tracing.ServiceName)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quorum.yaml", `
consensus:
  strict_validation: false
  max_veto_per_minute: 0
  deviation_threshold: "0.15"
  deviation_threshold_prod: 0.1
  weights:
    gpt: 2
providers:
  - id: gpt
    kind: OpenAI
    enabled: true
    api_url: https://api.example.com/v1
    model: gpt-4o
  - id: lab
    kind: static
    script_path: lab.yaml
    weight: 3
audit:
  enabled: false
metrics:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Consensus.StrictValidation)
	assert.Zero(t, cfg.Consensus.MaxVetoPerMinute, "explicit zero disables limiting")
	assert.Equal(t, 0.15, cfg.Consensus.DeviationThreshold)
	assert.Equal(t, 0.1, cfg.Consensus.DeviationThresholdProd)
	assert.False(t, cfg.Audit.Enabled)
	assert.False(t, cfg.Metrics.Enabled)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "openai", cfg.Providers[0].Kind)
	assert.Len(t, cfg.EnabledProviders(), 1)
	assert.Equal(t, map[string]float64{"gpt": 2, "lab": 3}, cfg.ProviderWeights())
}

func TestProviderWeights_MixedCaseIDs(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quorum.yaml", `
consensus:
  weights:
    DeepSeek: 5
    Lab: 1
providers:
  - id: DeepSeek
    kind: static
    enabled: true
    script_path: ds.yaml
  - id: Lab
    kind: static
    enabled: true
    script_path: lab.yaml
    weight: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"DeepSeek": 5, "Lab": 4}, cfg.ProviderWeights())
}

func TestLoad_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "providers.yaml", `
providers:
  - id: lab
    kind: static
    enabled: true
    script_path: script.yaml
consensus:
  none_veto_threshold: 80
`)
	path := writeFile(t, dir, "quorum.yaml", `
include:
  - providers.yaml
consensus:
  none_veto_threshold: 95
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 95, cfg.Consensus.NoneVetoThreshold, "main file overrides includes")
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "lab", cfg.Providers[0].ID)
	assert.Equal(t, filepath.Join(dir, "script.yaml"), cfg.Providers[0].ScriptPath)
}

func TestLoad_ExpandsSecrets(t *testing.T) {
	t.Setenv("QUORUM_TEST_KEY", "sk-from-env")
	path := writeFile(t, t.TempDir(), "quorum.yaml", `
providers:
  - id: gpt
    enabled: true
    api_url: https://api.example.com/v1
    model: m
    api_key: ${QUORUM_TEST_KEY}
    rate_limit_rps: 0.5
    headers:
      X-Org: org-${QUORUM_TEST_KEY}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	p := cfg.Providers[0]
	assert.Equal(t, "sk-from-env", p.APIKey)
	assert.Equal(t, "org-sk-from-env", p.Headers["x-org"])
	assert.Equal(t, 0.5, p.RateRPS)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "include cycle")
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"threshold":     "consensus:\n  deviation_threshold: 1.5\n",
		"none_veto":     "consensus:\n  none_veto_threshold: 101\n",
		"leverage":      "consensus:\n  leverage_min: 50\n  leverage_max: 10\n",
		"dynamic":       "consensus:\n  dynamic_threshold:\n    enabled: true\n    min: 0.9\n    max: 0.1\n",
		"unknown kind":  "providers:\n  - id: x\n    kind: pigeon\n    enabled: true\n",
		"missing model": "providers:\n  - id: x\n    enabled: true\n    api_url: http://x\n",
		"duplicate":     "providers:\n  - id: x\n  - id: x\n",
		"telegram":      "notify:\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n",
		"include":       "include: other.yaml\n",
	}
	for name, body := range cases {
		path := writeFile(t, t.TempDir(), "quorum.yaml", body)
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "quorum.yaml", "consensus:\n  deviation_threshold: 0.2\n")

	var got atomic.Value
	w, err := Watch(path, func(cfg *Config) { got.Store(cfg.Consensus.DeviationThreshold) })
	require.NoError(t, err)
	assert.Equal(t, 0.2, w.Current().Consensus.DeviationThreshold)

	writeFile(t, dir, "quorum.yaml", "consensus:\n  deviation_threshold: 0.3\n")
	require.NoError(t, w.Reload())
	assert.Equal(t, 0.3, w.Current().Consensus.DeviationThreshold)
	assert.Equal(t, 0.3, got.Load())

	writeFile(t, dir, "quorum.yaml", "consensus:\n  deviation_threshold: 7\n")
	assert.Error(t, w.Reload())
	assert.Equal(t, 0.3, w.Current().Consensus.DeviationThreshold, "failed reload keeps the previous config")
}
