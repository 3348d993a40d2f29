package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quorum/internal/decision"
	"quorum/internal/logger"
)

// EventSink 接收每次否决（以及可选的成功决策）事件，供外部审计/指标使用。
// 引擎不依赖其结果：返回的错误与 panic 只会被记录。
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

// Event 描述一次 symbol 决策的结果。
type Event struct {
	Symbol          string              `json:"symbol"`
	CycleID         string              `json:"cycle_id"`
	ReasonCode      ReasonCode          `json:"reason_code,omitempty"`
	Vetoed          bool                `json:"vetoed"`
	OK              bool                `json:"ok"`
	Action          decision.Action     `json:"action"`
	Confidence      int                 `json:"confidence"`
	Reason          string              `json:"reason,omitempty"`
	Threshold       float64             `json:"threshold"`
	ThresholdSource ThresholdSource     `json:"threshold_source,omitempty"`
	Details         map[string]any      `json:"details,omitempty"`
	Decisions       []decision.Decision `json:"decisions,omitempty"`
	Duration        time.Duration       `json:"duration"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Outcome groups an event for metrics labels: ok, veto, rate_limited or failed.
func (e Event) Outcome() string {
	switch {
	case e.OK:
		return "ok"
	case e.ReasonCode == ReasonRateLimit:
		return "rate_limited"
	case e.Vetoed:
		return "veto"
	default:
		return "failed"
	}
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := safeRecord(ctx, s, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeRecord(ctx context.Context, s EventSink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event sink panic: %v", r)
		}
	}()
	return s.Record(ctx, ev)
}

func notify(ctx context.Context, s EventSink, ev Event) {
	if s == nil {
		return
	}
	if err := safeRecord(ctx, s, ev); err != nil {
		logger.Warnf("event sink %s %s: %v", ev.Symbol, ev.CycleID, err)
	}
}
