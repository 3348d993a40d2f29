package provider

import (
	"fmt"
	"sort"
	"strings"

	"quorum/internal/decision"
)

const systemPrompt = `You are a crypto-derivatives trading advisor.
Reply with exactly one JSON object:
{"action": "LONG|SHORT|HOLD|CLOSE|NO_TRADE|NO_OPEN|NONE", "confidence": 0-100,
 "leverage": number, "take_profit": number, "stop_loss": number,
 "qty_delta_factor": -1..1, "reason": "short text", "extras": {"name": number}}
Use NONE only when you are certain no trade signal exists.`

// BuildPrompt renders the system and user prompts for one symbol and stage.
func BuildPrompt(snap decision.Snapshot, stage decision.Stage, symbol string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\nRound: %s\n", symbol, stage)
	if stage == decision.Stage2 {
		b.WriteString("This is the confirmation round; re-check your first answer against the full context.\n")
	}
	if snap.Price > 0 {
		fmt.Fprintf(&b, "Price: %g\n", snap.Price)
	}
	if snap.ATR != nil {
		fmt.Fprintf(&b, "ATR: %g\n", *snap.ATR)
	}
	if !snap.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", snap.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if len(snap.Extras) > 0 {
		keys := make([]string, 0, len(snap.Extras))
		for k := range snap.Extras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, snap.Extras[k])
		}
	}
	return systemPrompt, b.String()
}
