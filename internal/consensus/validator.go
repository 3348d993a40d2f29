package consensus

import (
	"quorum/internal/decision"
)

// ValidateSchema rejects non-finite typed numerics. Unset (nil) fields are valid.
func ValidateSchema(ds []decision.Decision) error {
	for _, d := range ds {
		for _, f := range []struct {
			name string
			val  *float64
		}{
			{"stop_loss", d.StopLoss()},
			{"take_profit", d.TakeProfit()},
			{"qty_delta_factor", d.QtyDeltaFactor()},
		} {
			if f.val == nil || isFinite(*f.val) {
				continue
			}
			return newFailure(ReasonSchema, fieldDetails(d, f.name, *f.val),
				"%s: provider %s %s is not a finite number", msgSchemaFailed, d.Provider(), f.name)
		}
	}
	return nil
}

// ValidateRanges checks raw leverage against limits and rejects negative price fields.
// The bound check is written so NaN and ±Inf leverage also fail.
func ValidateRanges(ds []decision.Decision, limits RangeLimits) error {
	for _, d := range ds {
		if lev, ok := d.Raw().Get(decision.FieldLeverage); ok {
			if !(lev >= limits.LeverageMin && lev <= limits.LeverageMax) {
				details := fieldDetails(d, decision.FieldLeverage, lev)
				details["min"] = limits.LeverageMin
				details["max"] = limits.LeverageMax
				return newFailure(ReasonRange, details,
					"%s: provider %s leverage %v outside [%v, %v]", msgRangeFailed, d.Provider(), lev, limits.LeverageMin, limits.LeverageMax)
			}
		}
		if sl := d.StopLoss(); sl != nil && *sl < 0 {
			return newFailure(ReasonRange, fieldDetails(d, "stop_loss", *sl),
				"%s: provider %s stop_loss %v is negative", msgRangeFailed, d.Provider(), *sl)
		}
		if tp := d.TakeProfit(); tp != nil && *tp < 0 {
			return newFailure(ReasonRange, fieldDetails(d, "take_profit", *tp),
				"%s: provider %s take_profit %v is negative", msgRangeFailed, d.Provider(), *tp)
		}
	}
	return nil
}

// validate runs ranges first, then the schema pass when strict.
func validate(ds []decision.Decision, s Settings) *Failure {
	if err := ValidateRanges(ds, s.Ranges); err != nil {
		return err.(*Failure)
	}
	if !s.StrictValidation {
		return nil
	}
	if err := ValidateSchema(ds); err != nil {
		return err.(*Failure)
	}
	return nil
}

func fieldDetails(d decision.Decision, field string, value float64) map[string]any {
	return map[string]any{
		"provider": d.Provider(),
		"field":    field,
		"value":    renderFloat(value),
	}
}

// CheckProtection vetoes an entry whose fused take-profit or stop-loss sits on the wrong
// side of the reference price: LONG needs stop < price < target, SHORT the reverse.
// Without a usable price hint nothing is checked.
func CheckProtection(c Consensus, price float64) *Failure {
	if !c.Action.IsEntry() || !(price > 0) || !isFinite(price) {
		return nil
	}
	long := c.Action == decision.ActionLong
	for _, f := range []struct {
		name  string
		val   *float64
		above bool
	}{
		{decision.FieldTakeProfit, c.TakeProfit, long},
		{decision.FieldStopLoss, c.StopLoss, !long},
	} {
		if f.val == nil {
			continue
		}
		v := *f.val
		if f.above && v > price || !f.above && v < price {
			continue
		}
		side := "below"
		if f.above {
			side = "above"
		}
		return newFailure(ReasonOutOfRange, map[string]any{
			"field":  f.name,
			"value":  renderFloat(v),
			"price":  renderFloat(price),
			"action": string(c.Action),
		}, "%s %s %s must be %s price %s", c.Action, f.name, renderFloat(v), side, renderFloat(price))
	}
	return nil
}
