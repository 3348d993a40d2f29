package consensus

import (
	"testing"

	"quorum/internal/decision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func act(provider, action string, conf int) decision.Decision {
	return decision.MustDecision(decision.Spec{Action: action, Confidence: conf, Provider: provider})
}

func TestPickFinal_Majority(t *testing.T) {
	ds := []decision.Decision{act("a", "LONG", 85), act("b", "LONG", 70), act("c", "SHORT", 90)}
	win, votes, err := PickFinal(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionLong, win.Action())
	assert.Equal(t, "a", win.Provider(), "highest-confidence representative")
	assert.Equal(t, 155.0, votes[decision.ActionLong])
	assert.Equal(t, 90.0, votes[decision.ActionShort])
}

func TestPickFinal_NoMajorityFallsBackToTopScore(t *testing.T) {
	ds := []decision.Decision{act("a", "LONG", 80), act("b", "SHORT", 55), act("c", "HOLD", 40)}
	win, _, err := PickFinal(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionLong, win.Action(), "80 of 175 is not a majority, but top score")

	ds = []decision.Decision{act("a", "LONG", 40), act("b", "SHORT", 40), act("c", "HOLD", 40)}
	win, _, err = PickFinal(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", win.Provider(), "full tie keeps the earliest")
}

func TestPickFinal_Weights(t *testing.T) {
	ds := []decision.Decision{act("a", "LONG", 90), act("b", "SHORT", 60), act("c", "SHORT", 50)}
	win, _, err := PickFinal(ds, map[string]float64{"a": 5, "b": 1, "c": 1})
	require.NoError(t, err)
	assert.Equal(t, decision.ActionLong, win.Action())

	win, _, err = PickFinal(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionShort, win.Action(), "110 of 200 by confidence")
	assert.Equal(t, "b", win.Provider())

	ds = []decision.Decision{act("a", "LONG", 60), act("b", "SHORT", 70)}
	win, _, err = PickFinal(ds, map[string]float64{"a": 2, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "b", win.Provider(), "equal weight breaks ties by confidence")
}

func TestPickFinal_ZeroConfidenceCountsVotes(t *testing.T) {
	ds := []decision.Decision{act("a", "SHORT", 0), act("b", "HOLD", 0), act("c", "HOLD", 0)}
	win, votes, err := PickFinal(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, win.Action())
	assert.Equal(t, 2.0, votes[decision.ActionHold])
}

func TestPickFinal_Empty(t *testing.T) {
	_, _, err := PickFinal(nil, nil)
	assert.ErrorIs(t, err, ErrNoDecisions)
	_, err = Aggregate(nil, nil)
	assert.ErrorIs(t, err, ErrNoDecisions)
}

func TestAggregate_Stage2Example(t *testing.T) {
	ds := []decision.Decision{
		decision.MustDecision(decision.Spec{Action: "LONG", Confidence: 85, Provider: "a",
			Raw: decision.Raw{Leverage: decision.Float(10), TakeProfit: decision.Float(110)}}),
		decision.MustDecision(decision.Spec{Action: "LONG", Confidence: 70, Provider: "b",
			Raw: decision.Raw{Leverage: decision.Float(11), StopLoss: decision.Float(95)}}),
		decision.MustDecision(decision.Spec{Action: "LONG", Confidence: 60, Provider: "c",
			Raw: decision.Raw{Leverage: decision.Float(12), TakeProfit: decision.Float(120)}}),
	}
	c, err := Aggregate(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionLong, c.Action)
	assert.Equal(t, 70, c.Confidence)
	require.NotNil(t, c.Leverage)
	assert.Equal(t, 11.0, *c.Leverage)
	assert.Equal(t, 115.0, *c.TakeProfit)
	assert.Equal(t, 95.0, *c.StopLoss)
}

func TestAggregate_ConfidenceFromAgreeingOnly(t *testing.T) {
	ds := []decision.Decision{act("a", "SHORT", 90), act("b", "SHORT", 71), act("c", "LONG", 20)}
	c, err := Aggregate(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionShort, c.Action)
	assert.Equal(t, 81, c.Confidence, "median(71, 90) = 80.5 rounds half away from zero")
	assert.Nil(t, c.Leverage)
}
