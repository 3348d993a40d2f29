package app

import (
	"strings"
	"time"

	"quorum/internal/config"
	"quorum/internal/consensus"
	"quorum/internal/gateway/provider"
)

// settingsFromConfig 把配置映射为引擎参数；cfg 已经过 applyDefaults + validate。
func settingsFromConfig(cfg *config.Config) consensus.Settings {
	c := cfg.Consensus
	return consensus.Settings{
		Thresholds: consensus.ThresholdConfig{
			Default:    c.DeviationThreshold,
			Production: c.DeviationThresholdProd,
			Lab:        c.DeviationThresholdLab,
			Dynamic: consensus.DynamicThreshold{
				Enabled:    c.DynamicThreshold.Enabled,
				Multiplier: c.DynamicThreshold.Multiplier,
				Min:        c.DynamicThreshold.Min,
				Max:        c.DynamicThreshold.Max,
			},
		},
		Environment:       strings.ToLower(strings.TrimSpace(cfg.App.Env)),
		NoneVetoThreshold: c.NoneVetoThreshold,
		StrictValidation:  c.StrictValidation,
		MaxVetoPerMinute:  c.MaxVetoPerMinute,
		Ranges:            consensus.RangeLimits{LeverageMin: c.LeverageMin, LeverageMax: c.LeverageMax},

		Weights:          cfg.ProviderWeights(),
		ProviderTimeout:  time.Duration(c.ProviderTimeoutSeconds) * time.Second,
		FailureThreshold: c.FailureThreshold,
		ProviderCooldown: time.Duration(c.CooldownSeconds) * time.Second,
		LogSuccesses:     c.LogSuccesses,
	}
}

func providerConfigs(cfg *config.Config) []provider.Config {
	out := make([]provider.Config, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		out = append(out, provider.Config{
			ID:         p.ID,
			Kind:       p.Kind,
			APIURL:     p.APIURL,
			APIKey:     p.APIKey,
			Model:      p.Model,
			ScriptPath: p.ScriptPath,
			Enabled:    p.Enabled,
			Headers:    p.Headers,

			RateLimitRPS:   p.RateRPS,
			RateLimitBurst: p.RateBurst,
		})
	}
	return out
}
