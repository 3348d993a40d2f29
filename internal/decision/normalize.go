package decision

import "strings"

// Action is the canonical trade intent carried by a Decision.
type Action string

const (
	ActionLong    Action = "LONG"
	ActionShort   Action = "SHORT"
	ActionHold    Action = "HOLD"
	ActionClose   Action = "CLOSE"
	ActionNoTrade Action = "NO_TRADE"
	ActionNoOpen  Action = "NO_OPEN"
	ActionNone    Action = "NONE"
)

func (a Action) String() string { return string(a) }

// IsEntry reports whether the action opens exposure.
func (a Action) IsEntry() bool {
	return a == ActionLong || a == ActionShort
}

// NormalizeAction 统一动作名称，兼容 buy/sell/wait 等同义词；无法识别的一律视为 HOLD。
func NormalizeAction(a string) Action {
	switch canonicalSignal(a) {
	case "LONG", "BUY", "OPEN", "OPEN_LONG", "ENTER_LONG", "GO_LONG", "BUY_LONG":
		return ActionLong
	case "SHORT", "SELL", "OPEN_SHORT", "ENTER_SHORT", "GO_SHORT", "SELL_SHORT":
		return ActionShort
	case "HOLD", "WAIT", "STAY", "NEUTRAL":
		return ActionHold
	case "CLOSE", "EXIT", "FLAT", "CLOSE_LONG", "CLOSE_SHORT", "EXIT_LONG", "EXIT_SHORT", "CLOSE_POSITION":
		return ActionClose
	case "NO_TRADE", "NO_ACTION", "SKIP":
		return ActionNoTrade
	case "NO_OPEN":
		return ActionNoOpen
	case "NONE":
		return ActionNone
	default:
		return ActionHold
	}
}

// canonicalSignal upper-cases the provider signal and folds separators to '_'.
func canonicalSignal(a string) string {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return replacer.Replace(strings.ToUpper(strings.TrimSpace(a)))
}
