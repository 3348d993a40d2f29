package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"quorum/internal/decision"
	"quorum/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const replySchemaJSON = `{
  "type": "object",
  "required": ["action", "confidence"],
  "properties": {
    "action": {"type": "string", "minLength": 1},
    "confidence": {"type": "integer"},
    "leverage": {"type": ["number", "null"]},
    "take_profit": {"type": ["number", "null"]},
    "stop_loss": {"type": ["number", "null"]},
    "qty_delta_factor": {"type": ["number", "null"]},
    "reason": {"type": "string"},
    "extras": {"type": "object", "additionalProperties": {"type": "number"}}
  }
}`

var replySchema = jsonschema.MustCompileString("reply.json", replySchemaJSON)

// ParseDecision extracts the JSON object from a model reply and builds a Decision.
// take_profit and stop_loss populate both the typed fields and the raw extras so the
// deviation guard can compare them.
func ParseDecision(raw, providerName string) (decision.Decision, error) {
	block, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return decision.Decision{}, fmt.Errorf("no JSON object in reply")
	}
	block = strings.TrimSpace(block)
	if !gjson.Valid(block) {
		return decision.Decision{}, fmt.Errorf("reply JSON is invalid")
	}
	parsed := gjson.Parse(block)
	if parsed.IsArray() {
		first := parsed.Get("0")
		if !first.Exists() {
			return decision.Decision{}, fmt.Errorf("reply array is empty")
		}
		parsed = first
	}
	if d := parsed.Get("decision"); d.IsObject() {
		parsed = d
	}
	var doc any
	if err := json.Unmarshal([]byte(parsed.Raw), &doc); err != nil {
		return decision.Decision{}, fmt.Errorf("decode reply: %w", err)
	}
	if err := replySchema.Validate(doc); err != nil {
		return decision.Decision{}, fmt.Errorf("reply schema: %w", err)
	}

	spec := decision.Spec{
		Action:         parsed.Get("action").String(),
		Confidence:     int(parsed.Get("confidence").Int()),
		StopLoss:       optFloat(parsed.Get("stop_loss")),
		TakeProfit:     optFloat(parsed.Get("take_profit")),
		QtyDeltaFactor: optFloat(parsed.Get("qty_delta_factor")),
		Reason:         strings.TrimSpace(parsed.Get("reason").String()),
		Provider:       providerName,
	}
	spec.Raw = decision.Raw{
		Leverage:   optFloat(parsed.Get("leverage")),
		TakeProfit: spec.TakeProfit,
		StopLoss:   spec.StopLoss,
	}
	if extras := parsed.Get("extras"); extras.IsObject() {
		spec.Raw.Extra = make(map[string]float64)
		extras.ForEach(func(key, value gjson.Result) bool {
			spec.Raw.Extra[key.String()] = value.Float()
			return true
		})
	}
	return decision.NewDecision(spec)
}

func optFloat(r gjson.Result) *float64 {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	v := r.Float()
	return &v
}
