package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Consensus.validate(); err != nil {
		return err
	}
	if err := validateProviders(c.Providers); err != nil {
		return err
	}
	if err := c.Audit.validate(); err != nil {
		return err
	}
	return c.Notify.validate()
}

func (c *ConsensusConfig) validate() error {
	for _, f := range []struct {
		key string
		val float64
	}{
		{"consensus.deviation_threshold", c.DeviationThreshold},
		{"consensus.deviation_threshold_prod", c.DeviationThresholdProd},
		{"consensus.deviation_threshold_lab", c.DeviationThresholdLab},
	} {
		if f.val < 0 || f.val > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", f.key, f.val)
		}
	}
	if c.NoneVetoThreshold < 0 || c.NoneVetoThreshold > 100 {
		return fmt.Errorf("consensus.none_veto_threshold must be in [0, 100], got %d", c.NoneVetoThreshold)
	}
	if c.LeverageMin > c.LeverageMax {
		return fmt.Errorf("consensus.leverage_min (%v) must be <= leverage_max (%v)", c.LeverageMin, c.LeverageMax)
	}
	d := c.DynamicThreshold
	if d.Enabled {
		if d.Multiplier <= 0 {
			return fmt.Errorf("consensus.dynamic_threshold.multiplier must be > 0")
		}
		if d.Min > d.Max {
			return fmt.Errorf("consensus.dynamic_threshold.min (%v) must be <= max (%v)", d.Min, d.Max)
		}
	}
	for id, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("consensus.weights.%s must be >= 0", id)
		}
	}
	return nil
}

func validateProviders(ps []ProviderConfig) error {
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if seen[p.ID] {
			return fmt.Errorf("providers contains duplicate id: %s", p.ID)
		}
		seen[p.ID] = true
		if p.Weight < 0 {
			return fmt.Errorf("providers.%s weight must be >= 0", p.ID)
		}
		if p.RateRPS < 0 || p.RateBurst < 0 {
			return fmt.Errorf("providers.%s rate_limit_rps/rate_limit_burst must be >= 0", p.ID)
		}
		if !p.Enabled {
			continue
		}
		switch p.Kind {
		case "openai":
			if strings.TrimSpace(p.Model) == "" {
				return fmt.Errorf("providers.%s missing model", p.ID)
			}
			if strings.TrimSpace(p.APIURL) == "" {
				return fmt.Errorf("providers.%s missing api_url", p.ID)
			}
		case "static":
			if strings.TrimSpace(p.ScriptPath) == "" {
				return fmt.Errorf("providers.%s missing script_path", p.ID)
			}
		default:
			return fmt.Errorf("providers.%s has unknown kind %q", p.ID, p.Kind)
		}
	}
	return nil
}

func (a *AuditConfig) validate() error {
	if a.Enabled && strings.TrimSpace(a.Path) == "" {
		return fmt.Errorf("audit.path cannot be empty when audit is enabled")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.CooldownSeconds < 0 {
		return fmt.Errorf("notify.cooldown_seconds must be >= 0")
	}
	t := n.Telegram
	if t.Enabled && (strings.TrimSpace(t.BotToken) == "" || strings.TrimSpace(t.ChatID) == "") {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id")
	}
	return nil
}
