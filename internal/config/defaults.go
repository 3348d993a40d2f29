package config

import (
	"fmt"
	"strings"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9991"
	defaultAppLogPath         = "/data/logs/quorum.log"
	defaultAppLLMLogPath      = "/data/logs/quorum-llm.log"
	defaultDeviationThreshold = 0.20
	defaultNoneVetoThreshold  = 90
	defaultMaxVetoPerMinute   = 10
	defaultLeverageMin        = 3
	defaultLeverageMax        = 75
	defaultDynamicMultiplier  = 2.0
	defaultDynamicMin         = 0.05
	defaultDynamicMax         = 0.50
	defaultProviderTimeout    = 30
	defaultFailureThreshold   = 3
	defaultProviderCooldown   = 60
	defaultAuditPath          = "/data/live/consensus.db"
	defaultProviderKind       = "openai"
	defaultNotifyCooldown     = 300
	defaultTracingService     = "quorum"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Consensus.applyDefaults(keys)
	c.Audit.applyDefaults(keys)
	c.Metrics.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	c.Tracing.applyDefaults(keys)
	for i := range c.Providers {
		c.Providers[i].applyDefaults(i)
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
	)
}

func (c *ConsensusConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "consensus.deviation_threshold",
			need:  func() bool { return c.DeviationThreshold <= 0 },
			apply: func() { c.DeviationThreshold = defaultDeviationThreshold },
		},
		fieldDefault{
			key:   "consensus.none_veto_threshold",
			need:  func() bool { return c.NoneVetoThreshold <= 0 },
			apply: func() { c.NoneVetoThreshold = defaultNoneVetoThreshold },
		},
		boolFieldDefault("consensus.strict_validation", &c.StrictValidation, true),
		fieldDefault{
			key:   "consensus.max_veto_per_minute",
			need:  func() bool { return c.MaxVetoPerMinute == 0 },
			apply: func() { c.MaxVetoPerMinute = defaultMaxVetoPerMinute },
		},
		fieldDefault{
			key:   "consensus.leverage_min",
			need:  func() bool { return c.LeverageMin <= 0 },
			apply: func() { c.LeverageMin = defaultLeverageMin },
		},
		fieldDefault{
			key:   "consensus.leverage_max",
			need:  func() bool { return c.LeverageMax <= 0 },
			apply: func() { c.LeverageMax = defaultLeverageMax },
		},
		fieldDefault{
			key:   "consensus.provider_timeout_seconds",
			need:  func() bool { return c.ProviderTimeoutSeconds <= 0 },
			apply: func() { c.ProviderTimeoutSeconds = defaultProviderTimeout },
		},
		fieldDefault{
			key:   "consensus.failure_threshold",
			need:  func() bool { return c.FailureThreshold == 0 },
			apply: func() { c.FailureThreshold = defaultFailureThreshold },
		},
		fieldDefault{
			key:   "consensus.provider_cooldown_seconds",
			need:  func() bool { return c.CooldownSeconds <= 0 },
			apply: func() { c.CooldownSeconds = defaultProviderCooldown },
		},
	)
	c.DynamicThreshold.applyDefaults(keys)
}

func (d *DynamicThresholdConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "consensus.dynamic_threshold.multiplier",
			need:  func() bool { return d.Multiplier <= 0 },
			apply: func() { d.Multiplier = defaultDynamicMultiplier },
		},
		fieldDefault{
			key:   "consensus.dynamic_threshold.min",
			need:  func() bool { return d.Min <= 0 },
			apply: func() { d.Min = defaultDynamicMin },
		},
		fieldDefault{
			key:   "consensus.dynamic_threshold.max",
			need:  func() bool { return d.Max <= 0 },
			apply: func() { d.Max = defaultDynamicMax },
		},
	)
}

func (a *AuditConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("audit.enabled", &a.Enabled, true),
		stringFieldDefault("audit.path", &a.Path, defaultAuditPath),
	)
}

func (m *MetricsConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys, boolFieldDefault("metrics.enabled", &m.Enabled, true))
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys, fieldDefault{
		key:   "notify.cooldown_seconds",
		need:  func() bool { return n.CooldownSeconds <= 0 },
		apply: func() { n.CooldownSeconds = defaultNotifyCooldown },
	})
}

func (t *TracingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("tracing.service_name", &t.ServiceName, defaultTracingService))
}

// provider 列表按下标定位，无法用 keySet 判断，只补空值。
func (p *ProviderConfig) applyDefaults(idx int) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = fmt.Sprintf("provider_%d", idx)
	}
	p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	if p.Kind == "" {
		p.Kind = defaultProviderKind
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
