package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"quorum/internal/decision"

	"gopkg.in/yaml.v3"
)

// ScriptEntry is one scripted answer. Error simulates a failing provider.
type ScriptEntry struct {
	Action         string             `yaml:"action"`
	Confidence     int                `yaml:"confidence"`
	Leverage       *float64           `yaml:"leverage"`
	TakeProfit     *float64           `yaml:"take_profit"`
	StopLoss       *float64           `yaml:"stop_loss"`
	QtyDeltaFactor *float64           `yaml:"qty_delta_factor"`
	Reason         string             `yaml:"reason"`
	Extras         map[string]float64 `yaml:"extras"`
	Error          string             `yaml:"error"`
}

// Script maps symbol -> stage (STAGE1/STAGE2) -> answer. Symbol "*" is the fallback.
type Script struct {
	Symbols map[string]map[string]ScriptEntry `yaml:"symbols"`
}

// ErrNotScripted is returned when the script has no answer for a symbol and stage.
var ErrNotScripted = errors.New("no scripted decision")

// StaticProvider replays decisions from a YAML script; used for lab runs and replays.
type StaticProvider struct {
	id      string
	enabled bool
	script  Script
}

var _ Provider = (*StaticProvider)(nil)

func NewStaticProvider(id string, enabled bool, script Script) *StaticProvider {
	normalized := Script{Symbols: make(map[string]map[string]ScriptEntry, len(script.Symbols))}
	for sym, stages := range script.Symbols {
		key := strings.ToUpper(strings.TrimSpace(sym))
		byStage := make(map[string]ScriptEntry, len(stages))
		for st, entry := range stages {
			byStage[strings.ToUpper(strings.TrimSpace(st))] = entry
		}
		normalized.Symbols[key] = byStage
	}
	return &StaticProvider{id: id, enabled: enabled, script: normalized}
}

// LoadStaticProvider reads a script file strictly (unknown keys are errors).
func LoadStaticProvider(id string, enabled bool, path string) (*StaticProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	var script Script
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	return NewStaticProvider(id, enabled, script), nil
}

func (p *StaticProvider) Name() string  { return p.id }
func (p *StaticProvider) Enabled() bool { return p.enabled }

func (p *StaticProvider) Decide(ctx context.Context, _ decision.Snapshot, stage decision.Stage, symbol string) (decision.Decision, error) {
	if err := ctx.Err(); err != nil {
		return decision.Decision{}, err
	}
	entry, ok := p.lookup(strings.ToUpper(strings.TrimSpace(symbol)), stage.String())
	if !ok {
		return decision.Decision{}, fmt.Errorf("%s %s %s: %w", p.id, symbol, stage, ErrNotScripted)
	}
	if entry.Error != "" {
		return decision.Decision{}, fmt.Errorf("%s %s %s: %s", p.id, symbol, stage, entry.Error)
	}
	return decision.NewDecision(decision.Spec{
		Action:         entry.Action,
		Confidence:     entry.Confidence,
		StopLoss:       entry.StopLoss,
		TakeProfit:     entry.TakeProfit,
		QtyDeltaFactor: entry.QtyDeltaFactor,
		Reason:         entry.Reason,
		Provider:       p.id,
		Raw: decision.Raw{
			Leverage:   entry.Leverage,
			TakeProfit: entry.TakeProfit,
			StopLoss:   entry.StopLoss,
			Extra:      entry.Extras,
		},
	})
}

func (p *StaticProvider) lookup(symbol, stage string) (ScriptEntry, bool) {
	for _, key := range []string{symbol, "*"} {
		if stages, ok := p.script.Symbols[key]; ok {
			if entry, ok := stages[stage]; ok {
				return entry, true
			}
		}
	}
	return ScriptEntry{}, false
}
