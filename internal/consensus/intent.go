package consensus

import "quorum/internal/decision"

// noSignalSentinel is the explicit "no trade" signal, distinct from HOLD.
const noSignalSentinel = string(decision.ActionNone)

// CheckIntent vetoes when any provider sends the no-signal sentinel with confidence at or
// above threshold. HOLD never triggers it.
func CheckIntent(ds []decision.Decision, threshold int) *Failure {
	for _, d := range ds {
		if d.Signal() != noSignalSentinel || d.Confidence() < threshold {
			continue
		}
		return newFailure(ReasonNoneSignal, map[string]any{
			"provider":   d.Provider(),
			"confidence": d.Confidence(),
			"threshold":  threshold,
		}, "provider %s signalled NONE with confidence %d (threshold %d)", d.Provider(), d.Confidence(), threshold)
	}
	return nil
}
