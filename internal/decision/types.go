package decision

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// 中文说明：
// 本文件定义单个 AI 顾问在某一轮给出的决策，以及共识引擎读取的行情快照。

// Well-known numeric fields carried in Raw.
const (
	FieldLeverage   = "leverage"
	FieldTakeProfit = "take_profit"
	FieldStopLoss   = "stop_loss"
)

// Raw holds provider-specific numeric extras used by the deviation checks.
type Raw struct {
	Leverage   *float64
	TakeProfit *float64
	StopLoss   *float64
	Extra      map[string]float64
}

// Field is one named numeric value present in Raw.
type Field struct {
	Name  string
	Value float64
}

// Get returns the value stored under name.
func (r Raw) Get(name string) (float64, bool) {
	switch name {
	case FieldLeverage:
		return deref(r.Leverage)
	case FieldTakeProfit:
		return deref(r.TakeProfit)
	case FieldStopLoss:
		return deref(r.StopLoss)
	}
	v, ok := r.Extra[name]
	return v, ok
}

// Fields lists every present value: well-known fields first, then extras sorted by key.
func (r Raw) Fields() []Field {
	out := make([]Field, 0, 3+len(r.Extra))
	for _, name := range []string{FieldLeverage, FieldTakeProfit, FieldStopLoss} {
		if v, ok := r.Get(name); ok {
			out = append(out, Field{Name: name, Value: v})
		}
	}
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		switch k {
		case FieldLeverage, FieldTakeProfit, FieldStopLoss:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, Field{Name: k, Value: r.Extra[k]})
	}
	return out
}

func (r Raw) clone() Raw {
	out := Raw{
		Leverage:   cloneFloat(r.Leverage),
		TakeProfit: cloneFloat(r.TakeProfit),
		StopLoss:   cloneFloat(r.StopLoss),
	}
	if len(r.Extra) > 0 {
		out.Extra = make(map[string]float64, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Spec is the mutable input to NewDecision.
type Spec struct {
	Action         string
	Confidence     int
	StopLoss       *float64
	TakeProfit     *float64
	QtyDeltaFactor *float64
	Reason         string
	Raw            Raw
	Provider       string
}

// Decision 单个顾问的一次建议；构造后不可变。
type Decision struct {
	action         Action
	signal         string
	confidence     int
	stopLoss       *float64
	takeProfit     *float64
	qtyDeltaFactor *float64
	reason         string
	raw            Raw
	provider       string
}

// NewDecision validates spec and builds an immutable Decision.
// Non-finite numerics pass through so the schema validator can reject them.
func NewDecision(spec Spec) (Decision, error) {
	if spec.Confidence < 0 || spec.Confidence > 100 {
		return Decision{}, &ConstructionError{Field: "confidence", Value: spec.Confidence, Reason: "must be within 0..100"}
	}
	if q := spec.QtyDeltaFactor; q != nil && !math.IsNaN(*q) && !math.IsInf(*q, 0) {
		if *q < -1 || *q > 1 {
			return Decision{}, &ConstructionError{Field: "qty_delta_factor", Value: *q, Reason: "must be within -1..1"}
		}
	}
	return Decision{
		action:         NormalizeAction(spec.Action),
		signal:         canonicalSignal(spec.Action),
		confidence:     spec.Confidence,
		stopLoss:       cloneFloat(spec.StopLoss),
		takeProfit:     cloneFloat(spec.TakeProfit),
		qtyDeltaFactor: cloneFloat(spec.QtyDeltaFactor),
		reason:         spec.Reason,
		raw:            spec.Raw.clone(),
		provider:       spec.Provider,
	}, nil
}

// MustDecision is NewDecision for fixtures; it panics on invalid input.
func MustDecision(spec Spec) Decision {
	d, err := NewDecision(spec)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Decision) Action() Action { return d.action }

// Signal is the provider's action before normalization.
func (d Decision) Signal() string { return d.signal }

func (d Decision) Confidence() int { return d.confidence }

func (d Decision) StopLoss() *float64 { return cloneFloat(d.stopLoss) }

func (d Decision) TakeProfit() *float64 { return cloneFloat(d.takeProfit) }

func (d Decision) QtyDeltaFactor() *float64 { return cloneFloat(d.qtyDeltaFactor) }

func (d Decision) Reason() string { return d.reason }

func (d Decision) Raw() Raw { return d.raw.clone() }

func (d Decision) Provider() string { return d.provider }

// WithProvider returns a copy attributed to p.
func (d Decision) WithProvider(p string) Decision {
	d.provider = p
	d.raw = d.raw.clone()
	return d
}

// MarshalJSON renders the decision for audit payloads.
func (d Decision) MarshalJSON() ([]byte, error) {
	raw := map[string]float64{}
	for _, f := range d.raw.Fields() {
		raw[f.Name] = f.Value
	}
	return json.Marshal(struct {
		Provider       string             `json:"provider"`
		Action         Action             `json:"action"`
		Signal         string             `json:"signal"`
		Confidence     int                `json:"confidence"`
		StopLoss       *float64           `json:"stop_loss,omitempty"`
		TakeProfit     *float64           `json:"take_profit,omitempty"`
		QtyDeltaFactor *float64           `json:"qty_delta_factor,omitempty"`
		Reason         string             `json:"reason,omitempty"`
		Raw            map[string]float64 `json:"raw,omitempty"`
	}{
		Provider:       d.provider,
		Action:         d.action,
		Signal:         d.signal,
		Confidence:     d.confidence,
		StopLoss:       finiteOrNil(d.stopLoss),
		TakeProfit:     finiteOrNil(d.takeProfit),
		QtyDeltaFactor: finiteOrNil(d.qtyDeltaFactor),
		Reason:         d.reason,
		Raw:            finiteMap(raw),
	})
}

// Snapshot 行情提示：价格与 ATR 由外部采集，引擎只读取。
type Snapshot struct {
	Price     float64        `json:"price,omitempty"`
	ATR       *float64       `json:"atr,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// Volatility returns atr/price when both hints are usable.
func (s Snapshot) Volatility() (float64, bool) {
	if s.ATR == nil || s.Price <= 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		return 0, false
	}
	atr := *s.ATR
	if math.IsNaN(atr) || math.IsInf(atr, 0) || atr < 0 {
		return 0, false
	}
	return atr / s.Price, true
}

// ConstructionError reports an invariant violation while building a Decision.
type ConstructionError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("invalid decision %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func deref(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func finiteOrNil(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return cloneFloat(p)
}

func finiteMap(m map[string]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
