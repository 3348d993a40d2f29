package decision

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAction(t *testing.T) {
	cases := map[string]Action{
		"long":        ActionLong,
		" BUY ":       ActionLong,
		"open-long":   ActionLong,
		"sell":        ActionShort,
		"Short":       ActionShort,
		"wait":        ActionHold,
		"hold":        ActionHold,
		"exit":        ActionClose,
		"close_short": ActionClose,
		"no action":   ActionNoTrade,
		"NO_TRADE":    ActionNoTrade,
		"no_open":     ActionNoOpen,
		"none":        ActionNone,
		"moon":        ActionHold,
		"":            ActionHold,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAction(in), "input %q", in)
	}
}

func TestNewDecision_RejectsInvariantViolations(t *testing.T) {
	_, err := NewDecision(Spec{Action: "LONG", Confidence: 101})
	var ce *ConstructionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "confidence", ce.Field)

	_, err = NewDecision(Spec{Action: "LONG", Confidence: -1})
	require.Error(t, err)

	_, err = NewDecision(Spec{Action: "LONG", Confidence: 50, QtyDeltaFactor: Float(1.5)})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "qty_delta_factor", ce.Field)

	d, err := NewDecision(Spec{Action: "LONG", Confidence: 50, QtyDeltaFactor: Float(-1)})
	require.NoError(t, err)
	assert.Equal(t, -1.0, *d.QtyDeltaFactor())
}

func TestNewDecision_NonFiniteLeftForSchemaCheck(t *testing.T) {
	d, err := NewDecision(Spec{Action: "LONG", Confidence: 50, QtyDeltaFactor: Float(math.NaN())})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(*d.QtyDeltaFactor()))
}

func TestDecision_KeepsRawSignalAndIsImmutable(t *testing.T) {
	lev := 10.0
	spec := Spec{Action: "none", Confidence: 95, Raw: Raw{Leverage: &lev, Extra: map[string]float64{"funding": 0.01}}}
	d := MustDecision(spec)
	assert.Equal(t, ActionNone, d.Action())
	assert.Equal(t, "NONE", d.Signal())

	lev = 99
	spec.Raw.Extra["funding"] = 5
	got, ok := d.Raw().Get(FieldLeverage)
	require.True(t, ok)
	assert.Equal(t, 10.0, got)
	got, _ = d.Raw().Get("funding")
	assert.Equal(t, 0.01, got)

	raw := d.Raw()
	*raw.Leverage = 1
	got, _ = d.Raw().Get(FieldLeverage)
	assert.Equal(t, 10.0, got)
}

func TestRaw_FieldsOrder(t *testing.T) {
	r := Raw{
		StopLoss: Float(90),
		Leverage: Float(5),
		Extra:    map[string]float64{"zeta": 1, "alpha": 2, FieldLeverage: 7},
	}
	fields := r.Fields()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{FieldLeverage, FieldStopLoss, "alpha", "zeta"}, names)
}

func TestStage(t *testing.T) {
	next, ok := Stage1.Next()
	require.True(t, ok)
	assert.Equal(t, Stage2, next)
	_, ok = Stage2.Next()
	assert.False(t, ok)
	assert.Equal(t, "STAGE1", Stage1.String())
	assert.Equal(t, []Stage{Stage1, Stage2}, Stages())
}

func TestSnapshot_Volatility(t *testing.T) {
	v, ok := Snapshot{Price: 100, ATR: Float(2)}.Volatility()
	require.True(t, ok)
	assert.InDelta(t, 0.02, v, 1e-12)

	_, ok = Snapshot{Price: 0, ATR: Float(2)}.Volatility()
	assert.False(t, ok)
	_, ok = Snapshot{Price: 100}.Volatility()
	assert.False(t, ok)
	_, ok = Snapshot{Price: 100, ATR: Float(math.Inf(1))}.Volatility()
	assert.False(t, ok)
}

func TestDecision_MarshalJSONDropsNonFinite(t *testing.T) {
	d := MustDecision(Spec{Action: "buy", Confidence: 70, TakeProfit: Float(math.Inf(1)), Provider: "p1"})
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"p1","action":"LONG","signal":"BUY","confidence":70}`, string(b))
}
