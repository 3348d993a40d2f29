package consensus

import (
	"encoding/json"
	"math"

	"quorum/internal/decision"
)

// Result is the outcome for one symbol. The action/confidence/reason and numeric keys
// are always present in JSON; absent numerics render as null.
type Result struct {
	Symbol          string                      `json:"symbol"`
	OK              bool                        `json:"ok"`
	Action          decision.Action             `json:"action"`
	Confidence      int                         `json:"confidence"`
	Reason          string                      `json:"reason"`
	ReasonCode      ReasonCode                  `json:"reason_code,omitempty"`
	Leverage        *float64                    `json:"leverage"`
	TakeProfit      *float64                    `json:"take_profit"`
	StopLoss        *float64                    `json:"stop_loss"`
	Details         map[string]any              `json:"details,omitempty"`
	CycleID         string                      `json:"cycle_id"`
	Threshold       float64                     `json:"threshold"`
	ThresholdSource ThresholdSource             `json:"threshold_source,omitempty"`
	Votes           map[decision.Action]float64 `json:"votes,omitempty"`
}

// Vetoed reports whether the result came from a guard rather than a failure to collect.
func (r Result) Vetoed() bool {
	return r.ReasonCode.IsVeto() || r.ReasonCode == ReasonRateLimit
}

// Summary counts a batch. Every non-ok result counts as vetoed so the two counters
// always add up to total_symbols.
type Summary struct {
	TotalSymbols        int `json:"total_symbols"`
	SuccessfulDecisions int `json:"successful_decisions"`
	VetoedDecisions     int `json:"vetoed_decisions"`
}

// BatchResult is the multi-symbol response.
type BatchResult struct {
	Symbols []string          `json:"symbols"`
	Results map[string]Result `json:"results"`
	Summary Summary           `json:"summary"`
}

// Response holds either one flat Result or a BatchResult.
type Response struct {
	Single *Result
	Batch  *BatchResult
}

// IsBatch reports whether more than one symbol was requested.
func (r Response) IsBatch() bool { return r.Batch != nil }

// Results lists the per-symbol results in request order.
func (r Response) Results() []Result {
	if r.Single != nil {
		return []Result{*r.Single}
	}
	if r.Batch == nil {
		return nil
	}
	out := make([]Result, 0, len(r.Batch.Symbols))
	for _, sym := range r.Batch.Symbols {
		out = append(out, r.Batch.Results[sym])
	}
	return out
}

// MarshalJSON flattens single-symbol responses; batches keep the wrapping map.
func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Single != nil:
		return json.Marshal(r.Single.sanitized())
	case r.Batch != nil:
		b := BatchResult{Symbols: r.Batch.Symbols, Summary: r.Batch.Summary, Results: make(map[string]Result, len(r.Batch.Results))}
		for k, v := range r.Batch.Results {
			b.Results[k] = v.sanitized()
		}
		return json.Marshal(b)
	}
	return []byte("null"), nil
}

func newBatch(symbols []string, results []Result) *BatchResult {
	b := &BatchResult{
		Symbols: symbols,
		Results: make(map[string]Result, len(results)),
		Summary: Summary{TotalSymbols: len(symbols)},
	}
	for _, res := range results {
		b.Results[res.Symbol] = res
		if res.OK {
			b.Summary.SuccessfulDecisions++
		} else {
			b.Summary.VetoedDecisions++
		}
	}
	return b
}

// sanitized drops non-finite numerics, which encoding/json cannot represent.
func (r Result) sanitized() Result {
	r.Leverage = finite(r.Leverage)
	r.TakeProfit = finite(r.TakeProfit)
	r.StopLoss = finite(r.StopLoss)
	return r
}

func finite(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return p
}
