package consensus

import (
	"errors"
	"math"
	"sort"

	"quorum/internal/decision"
)

// ErrNoDecisions is returned when aggregation is asked to fuse an empty set.
var ErrNoDecisions = errors.New("consensus: no decisions to aggregate")

// Consensus is the fused outcome of one round.
type Consensus struct {
	Action     decision.Action
	Confidence int
	Leverage   *float64
	TakeProfit *float64
	StopLoss   *float64
	Votes      map[decision.Action]float64
	Winner     decision.Decision
}

// PickFinal chooses the winning decision. A strict weighted majority for one action wins;
// otherwise the single highest weighted decision wins (ties: higher confidence, then
// earlier position). Weight defaults to confidence when weights has no positive entry.
func PickFinal(ds []decision.Decision, weights map[string]float64) (decision.Decision, map[decision.Action]float64, error) {
	if len(ds) == 0 {
		return decision.Decision{}, nil, ErrNoDecisions
	}
	scores := make([]float64, len(ds))
	total := 0.0
	for i, d := range ds {
		scores[i] = weightOf(d, weights)
		total += scores[i]
	}
	if total == 0 {
		for i := range scores {
			scores[i] = 1
		}
		total = float64(len(ds))
	}
	votes := make(map[decision.Action]float64)
	for i, d := range ds {
		votes[d.Action()] += scores[i]
	}

	actions := make([]decision.Action, 0, len(votes))
	for a := range votes {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	for _, a := range actions {
		if votes[a] > total/2 {
			best := -1
			for i, d := range ds {
				if d.Action() != a {
					continue
				}
				if best < 0 || d.Confidence() > ds[best].Confidence() {
					best = i
				}
			}
			return ds[best], votes, nil
		}
	}

	best := 0
	for i := 1; i < len(ds); i++ {
		switch {
		case scores[i] > scores[best]:
			best = i
		case scores[i] == scores[best] && ds[i].Confidence() > ds[best].Confidence():
			best = i
		}
	}
	return ds[best], votes, nil
}

// Aggregate fuses a round: action from PickFinal, confidence as the median of the
// agreeing decisions, numeric fields as medians of the raw entries that are present.
func Aggregate(ds []decision.Decision, weights map[string]float64) (Consensus, error) {
	winner, votes, err := PickFinal(ds, weights)
	if err != nil {
		return Consensus{}, err
	}
	confs := make([]float64, 0, len(ds))
	for _, d := range ds {
		if d.Action() == winner.Action() {
			confs = append(confs, float64(d.Confidence()))
		}
	}
	return Consensus{
		Action:     winner.Action(),
		Confidence: int(math.Round(Median(confs))),
		Leverage:   medianField(ds, decision.FieldLeverage),
		TakeProfit: medianField(ds, decision.FieldTakeProfit),
		StopLoss:   medianField(ds, decision.FieldStopLoss),
		Votes:      votes,
		Winner:     winner,
	}, nil
}

func medianField(ds []decision.Decision, name string) *float64 {
	values := make([]float64, 0, len(ds))
	for _, d := range ds {
		if v, ok := d.Raw().Get(name); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}
	m := Median(values)
	return &m
}

func weightOf(d decision.Decision, weights map[string]float64) float64 {
	if w, ok := weights[d.Provider()]; ok && w > 0 {
		return w
	}
	return float64(d.Confidence())
}
