package consensus

import (
	"math"
	"sort"

	"quorum/internal/decision"

	"github.com/shopspring/decimal"
)

// deviationEpsilon keeps near-zero medians from dividing by zero; they still amplify
// small absolute differences, which is treated as a genuine veto.
const deviationEpsilon = 1e-8

type fieldSample struct {
	value    float64
	provider string
}

// Deviation returns |v-m| / max(|m|, eps).
func Deviation(v, m float64) float64 {
	return math.Abs(v-m) / math.Max(math.Abs(m), deviationEpsilon)
}

// CheckDeviation vetoes when any raw field value present in at least two decisions
// deviates from that field's median by more than threshold. Fields are checked in name
// order, values in decision order, so the reported offender is deterministic.
func CheckDeviation(ds []decision.Decision, threshold float64) *Failure {
	samples := make(map[string][]fieldSample)
	for _, d := range ds {
		for _, f := range d.Raw().Fields() {
			samples[f.Name] = append(samples[f.Name], fieldSample{value: f.Value, provider: d.Provider()})
		}
	}
	names := make([]string, 0, len(samples))
	for name, s := range samples {
		if len(s) >= 2 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		values := make([]float64, len(samples[name]))
		for i, s := range samples[name] {
			values[i] = s.value
		}
		m := Median(values)
		for _, s := range samples[name] {
			dev := Deviation(s.value, m)
			if !math.IsNaN(dev) && dev <= threshold {
				continue
			}
			return newFailure(ReasonDeviation, map[string]any{
				"field":         name,
				"value":         renderFloat(s.value),
				"median":        renderFloat(m),
				"provider":      s.provider,
				"deviation_pct": renderPct(dev),
				"threshold_pct": renderPct(threshold),
			}, "%s deviation %s%% exceeds threshold %s%% (value=%s median=%s provider=%s)",
				name, renderPct(dev), renderPct(threshold), renderFloat(s.value), renderFloat(m), s.provider)
		}
	}
	return nil
}

// renderPct renders a fraction as a percentage with two decimals.
func renderPct(frac float64) string {
	if !isFinite(frac) {
		return renderFloat(frac)
	}
	return decimal.NewFromFloat(frac).Shift(2).StringFixed(2)
}

func renderFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return decimal.NewFromFloat(v).String()
}
