package consensus

import (
	"strings"

	"quorum/internal/decision"
)

// ThresholdSource names the rule that produced the active deviation threshold.
type ThresholdSource string

const (
	SourceDynamic     ThresholdSource = "dynamic"
	SourceEnvironment ThresholdSource = "environment"
	SourceGlobal      ThresholdSource = "global"
)

// ResolveThreshold picks the deviation threshold: dynamic, then environment override,
// then the global default.
func ResolveThreshold(cfg ThresholdConfig, env string, snap decision.Snapshot) (float64, ThresholdSource) {
	if dyn := cfg.Dynamic; dyn.Enabled {
		if vol, ok := snap.Volatility(); ok {
			return Clamp(dyn.Multiplier*vol, dyn.Min, dyn.Max), SourceDynamic
		}
	}
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		if cfg.Production > 0 {
			return cfg.Production, SourceEnvironment
		}
	case "lab", "sandbox":
		if cfg.Lab > 0 {
			return cfg.Lab, SourceEnvironment
		}
	}
	return cfg.Default, SourceGlobal
}
