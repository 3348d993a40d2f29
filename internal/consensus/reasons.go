package consensus

import "fmt"

// ReasonCode is the machine-readable outcome of a guard.
type ReasonCode string

const (
	ReasonDeviation   ReasonCode = "DEV_VETO"
	ReasonNoneSignal  ReasonCode = "NONE_VETO"
	ReasonSchema      ReasonCode = "SCHEMA_FAIL"
	ReasonRange       ReasonCode = "RANGE_FAIL"
	ReasonRateLimit   ReasonCode = "RATE_LIMIT"
	ReasonOutOfRange  ReasonCode = "OUT_OF_RANGE"
	ReasonNoDecisions ReasonCode = "NO_DECISIONS"
)

// MsgNoDecisions is returned when every provider failed or none is enabled.
const MsgNoDecisions = "No valid decisions from providers"

const (
	msgSchemaFailed = "Schema validation failed"
	msgRangeFailed  = "Range validation failed"
)

// IsVeto reports whether code is a veto that feeds the rate limiter.
func (c ReasonCode) IsVeto() bool {
	switch c {
	case ReasonDeviation, ReasonNoneSignal, ReasonSchema, ReasonRange, ReasonOutOfRange:
		return true
	}
	return false
}

// Failure is a guard outcome: a coded business result, not a program error.
type Failure struct {
	Code    ReasonCode
	Message string
	Details map[string]any
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func newFailure(code ReasonCode, details map[string]any, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...), Details: details}
}
