package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"quorum/internal/config"
	"quorum/internal/consensus"
	"quorum/internal/gateway/provider"
)

type StartupSummary struct {
	Env       string
	HTTPAddr  string
	Providers []ProviderDetail
	Settings  consensus.Settings
	AuditPath string
	Metrics   bool
}

type ProviderDetail struct {
	ID      string
	Kind    string
	Enabled bool
	Weight  float64
}

func newStartupSummary(cfg *config.Config, s consensus.Settings, providers []provider.Provider) *StartupSummary {
	kinds := make(map[string]string, len(cfg.Providers))
	for _, p := range cfg.Providers {
		kinds[p.ID] = p.Kind
	}
	sum := &StartupSummary{
		Env:      cfg.App.Env,
		HTTPAddr: cfg.App.HTTPAddr,
		Settings: s,
		Metrics:  cfg.Metrics.Enabled,
	}
	if cfg.Audit.Enabled {
		sum.AuditPath = cfg.Audit.Path
	}
	for _, p := range providers {
		sum.Providers = append(sum.Providers, ProviderDetail{
			ID:      p.Name(),
			Kind:    kinds[p.Name()],
			Enabled: p.Enabled(),
			Weight:  s.Weights[p.Name()],
		})
	}
	return sum
}

func (s *StartupSummary) Print() {
	s.Render(os.Stdout)
}

// Render 输出启动配置摘要。
func (s *StartupSummary) Render(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[服务 (SERVICE)]")
	fmt.Fprintf(w, "  环境: %s\n", orDash(s.Env))
	fmt.Fprintf(w, "  HTTP: %s\n", orDash(s.HTTPAddr))
	fmt.Fprintf(w, "  审计库: %s\n", orDash(s.AuditPath))
	fmt.Fprintf(w, "  Prometheus: %v\n", s.Metrics)
	fmt.Fprintln(w)

	t := s.Settings.Thresholds
	fmt.Fprintln(w, "[共识参数 (CONSENSUS)]")
	fmt.Fprintf(w, "  偏离阈值: default=%.2f prod=%.2f lab=%.2f\n", t.Default, t.Production, t.Lab)
	if t.Dynamic.Enabled {
		fmt.Fprintf(w, "  动态阈值: x%.2f clamp [%.2f, %.2f]\n", t.Dynamic.Multiplier, t.Dynamic.Min, t.Dynamic.Max)
	}
	fmt.Fprintf(w, "  NONE 否决: %d\n", s.Settings.NoneVetoThreshold)
	fmt.Fprintf(w, "  每分钟否决上限: %d\n", s.Settings.MaxVetoPerMinute)
	fmt.Fprintf(w, "  杠杆范围: [%.0f, %.0f]\n", s.Settings.Ranges.LeverageMin, s.Settings.Ranges.LeverageMax)
	fmt.Fprintf(w, "  严格校验: %v\n", s.Settings.StrictValidation)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[决策来源 (PROVIDERS)]")
	if len(s.Providers) == 0 {
		fmt.Fprintln(w, "  (无配置)")
	}
	for _, p := range s.Providers {
		state := "off"
		if p.Enabled {
			state = "on"
		}
		line := fmt.Sprintf("  > %s (%s) %s", p.ID, orDash(p.Kind), state)
		if p.Weight > 0 {
			line += fmt.Sprintf(" weight=%.2f", p.Weight)
		}
		fmt.Fprintln(w, line)
	}
	if len(s.Settings.Weights) > 0 {
		fmt.Fprintf(w, "  权重: %s\n", formatWeights(s.Settings.Weights))
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatWeights(weights map[string]float64) string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, weights[k]))
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
