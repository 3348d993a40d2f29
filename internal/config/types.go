package config

import "strings"

// Config 是 quorum 的主配置载体。
type Config struct {
	App       AppConfig        `toml:"app"`
	Consensus ConsensusConfig  `toml:"consensus"`
	Providers []ProviderConfig `toml:"providers"`
	Audit     AuditConfig      `toml:"audit"`
	Metrics   MetricsConfig    `toml:"metrics"`
	Notify    NotifyConfig     `toml:"notify"`
	Tracing   TracingConfig    `toml:"tracing"`
}

type AppConfig struct {
	Env               string `toml:"env"`
	LogLevel          string `toml:"log_level"`
	HTTPAddr          string `toml:"http_addr"`
	LogPath           string `toml:"log_path"`
	LLMLog            string `toml:"llm_log_path"`
	LLMDump           bool   `toml:"llm_dump_payload"`
	StructuredLogging bool   `toml:"structured_logging"`
}

// ConsensusConfig 共识引擎参数；阈值均为比例（0.2 = 20%）。
type ConsensusConfig struct {
	DeviationThreshold     float64                `toml:"deviation_threshold"`
	DeviationThresholdProd float64                `toml:"deviation_threshold_prod"`
	DeviationThresholdLab  float64                `toml:"deviation_threshold_lab"`
	NoneVetoThreshold      int                    `toml:"none_veto_threshold"`
	StrictValidation       bool                   `toml:"strict_validation"`
	MaxVetoPerMinute       int                    `toml:"max_veto_per_minute"`
	LeverageMin            float64                `toml:"leverage_min"`
	LeverageMax            float64                `toml:"leverage_max"`
	DynamicThreshold       DynamicThresholdConfig `toml:"dynamic_threshold"`
	Weights                map[string]float64     `toml:"weights"`
	ProviderTimeoutSeconds int                    `toml:"provider_timeout_seconds"`
	FailureThreshold       int                    `toml:"failure_threshold"`
	CooldownSeconds        int                    `toml:"provider_cooldown_seconds"`
	LogSuccesses           bool                   `toml:"log_successes"`
}

type DynamicThresholdConfig struct {
	Enabled    bool    `toml:"enabled"`
	Multiplier float64 `toml:"multiplier"`
	Min        float64 `toml:"min"`
	Max        float64 `toml:"max"`
}

// ProviderConfig 描述单个决策来源（openai 兼容接口或脚本化的 static）。
type ProviderConfig struct {
	ID         string            `toml:"id"`
	Kind       string            `toml:"kind"`
	Enabled    bool              `toml:"enabled"`
	APIURL     string            `toml:"api_url"`
	APIKey     string            `toml:"api_key"`
	Model      string            `toml:"model"`
	ScriptPath string            `toml:"script_path"`
	Weight     float64           `toml:"weight"`
	Headers    map[string]string `toml:"headers"`
	RateRPS    float64           `toml:"rate_limit_rps"`
	RateBurst  int               `toml:"rate_limit_burst"`
}

type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// NotifyConfig 控制熔断/否决告警推送。
type NotifyConfig struct {
	Telegram        TelegramConfig `toml:"telegram"`
	OnVeto          bool           `toml:"on_veto"`
	CooldownSeconds int            `toml:"cooldown_seconds"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// TracingConfig 控制 OpenTelemetry span 导出；output 为空写 stdout。
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	Output      string `toml:"output"`
}

// EnabledProviders 返回启用的 provider。
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// ProviderWeights 合并 consensus.weights 与 providers[].weight（后者优先）。
// viper 会把 map 的键转成小写，所以这里按不区分大小写匹配 provider id，
// 返回的键始终是 providers[].id 的原始写法。
func (c *Config) ProviderWeights() map[string]float64 {
	byLower := make(map[string]float64, len(c.Consensus.Weights))
	for id, w := range c.Consensus.Weights {
		if w > 0 {
			byLower[strings.ToLower(strings.TrimSpace(id))] = w
		}
	}
	out := make(map[string]float64, len(byLower)+len(c.Providers))
	for _, p := range c.Providers {
		key := strings.ToLower(p.ID)
		if w, ok := byLower[key]; ok {
			out[p.ID] = w
			delete(byLower, key)
		}
		if p.Weight > 0 {
			out[p.ID] = p.Weight
		}
	}
	for id, w := range byLower {
		out[id] = w
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
