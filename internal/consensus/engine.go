package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"quorum/internal/decision"
	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
	"quorum/internal/pkg/symbol"
	"quorum/internal/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// 中文说明：
// Engine 对每个 symbol 执行两轮询问（STAGE1 → STAGE2），随后依次做
// 校验 → NONE 否决 → 偏离否决 → 聚合；任一否决都会计入该 symbol 的限流计数。

// Options configures NewEngine. Only Providers is required.
type Options struct {
	Providers []provider.Provider
	Settings  Settings
	Limiter   LimitStore
	Clock     func() time.Time

	// Sink gets vetoes, plus successes when LogSuccesses is set.
	Sink EventSink

	// Monitor gets every outcome.
	Monitor EventSink

	// NewCycleID overrides the uuid generator.
	NewCycleID func() string
}

// Request asks for decisions on one or more symbols sharing a snapshot.
type Request struct {
	Symbols  []string
	Snapshot decision.Snapshot
	CycleID  string
}

// Engine is the consensus orchestrator. It is safe for concurrent use.
type Engine struct {
	dispatcher *Dispatcher
	limiter    LimitStore
	settings   atomic.Pointer[Settings]
	sink       EventSink
	monitor    EventSink
	now        func() time.Time
	newID      func() string
}

// NewEngine builds an engine; a nil Limiter gets an in-memory VetoLimiter.
func NewEngine(opts Options) *Engine {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	newID := opts.NewCycleID
	if newID == nil {
		newID = uuid.NewString
	}
	s := opts.Settings.clone()
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewVetoLimiter(s.MaxVetoPerMinute, now)
	}
	e := &Engine{
		dispatcher: NewDispatcher(opts.Providers, s.ProviderTimeout, s.FailureThreshold, s.ProviderCooldown),
		limiter:    limiter,
		sink:       opts.Sink,
		monitor:    opts.Monitor,
		now:        now,
		newID:      newID,
	}
	e.settings.Store(&s)
	return e
}

// Settings returns a copy of the active settings.
func (e *Engine) Settings() Settings {
	return e.settings.Load().clone()
}

// UpdateSettings swaps the settings for subsequent calls; in-flight calls keep theirs.
func (e *Engine) UpdateSettings(s Settings) {
	s = s.clone()
	e.settings.Store(&s)
	e.limiter.SetMax(s.MaxVetoPerMinute)
	e.dispatcher.SetTimeout(s.ProviderTimeout)
	logger.Infof("consensus settings updated: env=%s threshold=%.4f none_veto=%d max_veto=%d strict=%v",
		s.Environment, s.Thresholds.Default, s.NoneVetoThreshold, s.MaxVetoPerMinute, s.StrictValidation)
}

// Dispatcher exposes the provider fan-out (breaker hooks, provider listing).
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// Limits returns the rate-limit state for symbol.
func (e *Engine) Limits(symbol string) RateLimitState {
	return e.limiter.State(normalizeSymbol(symbol))
}

// ResetLimits closes the circuit for symbol and clears its veto count.
func (e *Engine) ResetLimits(symbol string) RateLimitState {
	sym := normalizeSymbol(symbol)
	e.limiter.Reset(sym)
	logger.Infof("rate limit reset for %s", sym)
	return e.limiter.State(sym)
}

// Decide runs the pipeline for every requested symbol. Business outcomes (vetoes, rate
// limits, missing decisions) are reported in the response, never as errors.
func (e *Engine) Decide(ctx context.Context, req Request) Response {
	symbols := normalizeSymbols(req.Symbols)
	cycleID := strings.TrimSpace(req.CycleID)
	if cycleID == "" {
		cycleID = e.newID()
	}
	ctx, span := tracing.Start(ctx, "consensus.decide",
		attribute.String("cycle_id", cycleID),
		attribute.Int("symbols", len(symbols)),
	)
	defer span.End()
	if len(symbols) == 1 {
		res := e.decideSymbol(ctx, symbols[0], req.Snapshot, cycleID)
		return Response{Single: &res}
	}

	results := make([]Result, len(symbols))
	var eg errgroup.Group
	for i, sym := range symbols {
		i, sym := i, sym
		eg.Go(func() error {
			results[i] = e.decideSymbol(ctx, sym, req.Snapshot, cycleID)
			return nil
		})
	}
	_ = eg.Wait()
	return Response{Batch: newBatch(symbols, results)}
}

func (e *Engine) decideSymbol(ctx context.Context, symbol string, snap decision.Snapshot, cycleID string) Result {
	ctx, span := tracing.Start(ctx, "consensus.symbol", attribute.String("symbol", symbol))
	defer span.End()
	start := e.now()
	s := e.Settings()
	threshold, source := ResolveThreshold(s.Thresholds, s.Environment, snap)

	var (
		res    Result
		stage2 []decision.Decision
	)
	allowed := e.limiter.Guard(symbol, func() bool {
		res, stage2 = e.evaluate(ctx, s, symbol, snap, threshold)
		return res.ReasonCode.IsVeto()
	})
	if !allowed {
		st := e.limiter.State(symbol)
		reason := fmt.Sprintf("%s: %s blocked, %d vetoes in window (max %d)", ReasonRateLimit, symbol, st.VetoCount, st.MaxPerMin)
		res = Result{
			Action:     decision.ActionNoTrade,
			ReasonCode: ReasonRateLimit,
			Reason:     reason,
			Details: map[string]any{
				"veto_count":   st.VetoCount,
				"circuit_open": st.CircuitOpen,
				"max_per_min":  st.MaxPerMin,
			},
		}
	}
	res.Symbol = symbol
	res.CycleID = cycleID
	res.Threshold = threshold
	res.ThresholdSource = source

	elapsed := e.now().Sub(start)
	span.SetAttributes(
		attribute.Bool("ok", res.OK),
		attribute.String("action", string(res.Action)),
		attribute.String("reason_code", string(res.ReasonCode)),
		attribute.Float64("threshold", threshold),
	)
	if !res.OK {
		logger.Event(ctx, slog.LevelWarn, "consensus veto",
			"symbol", symbol,
			"cycle_id", cycleID,
			"reason_code", string(res.ReasonCode),
			"reason", res.Reason,
			"threshold", threshold,
			"threshold_source", string(source),
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		logger.Infof("consensus %s %s: %s conf=%d threshold=%.4f(%s)", cycleID, symbol, res.Action, res.Confidence, threshold, source)
	}
	ev := Event{
		Symbol:          symbol,
		CycleID:         cycleID,
		ReasonCode:      res.ReasonCode,
		Vetoed:          res.Vetoed(),
		OK:              res.OK,
		Action:          res.Action,
		Confidence:      res.Confidence,
		Reason:          res.Reason,
		Threshold:       threshold,
		ThresholdSource: source,
		Details:         res.Details,
		Decisions:       stage2,
		Duration:        elapsed,
		Timestamp:       start,
	}
	notify(ctx, e.monitor, ev)
	if !res.OK || s.LogSuccesses {
		notify(ctx, e.sink, ev)
	}
	return res
}

// evaluate runs both rounds and the guards. It executes under the symbol's limiter lock.
func (e *Engine) evaluate(ctx context.Context, s Settings, symbol string, snap decision.Snapshot, threshold float64) (Result, []decision.Decision) {
	var round []decision.Decision
	counts := make(map[string]int, 2)
	for _, stage := range decision.Stages() {
		round = e.dispatcher.Collect(ctx, snap, stage, symbol)
		counts[stage.String()] = len(round)
		if next, ok := stage.Next(); ok {
			snap = carryRound(snap, round, s.Weights)
			logger.Debugf("consensus %s %s collected %d decisions, moving to %s", symbol, stage, len(round), next)
		}
	}
	stage2 := round

	if len(stage2) == 0 {
		return Result{
			Action:     decision.ActionNoTrade,
			ReasonCode: ReasonNoDecisions,
			Reason:     MsgNoDecisions,
			Details: map[string]any{
				"providers_enabled": e.dispatcher.Enabled(),
				"stage1_decisions":  counts[decision.Stage1.String()],
			},
		}, nil
	}

	for _, guard := range []func() *Failure{
		func() *Failure { return validate(stage2, s) },
		func() *Failure { return CheckIntent(stage2, s.NoneVetoThreshold) },
		func() *Failure { return CheckDeviation(stage2, threshold) },
	} {
		if f := guard(); f != nil {
			return vetoResult(f), stage2
		}
	}

	agg, err := Aggregate(stage2, s.Weights)
	if err != nil {
		return Result{Action: decision.ActionNoTrade, ReasonCode: ReasonNoDecisions, Reason: MsgNoDecisions}, stage2
	}
	if f := CheckProtection(agg, snap.Price); f != nil {
		return vetoResult(f), stage2
	}

	reason := agg.Winner.Reason()
	if reason == "" {
		reason = fmt.Sprintf("consensus %s from %d providers", agg.Action, len(stage2))
	}
	return Result{
		OK:         true,
		Action:     agg.Action,
		Confidence: agg.Confidence,
		Reason:     reason,
		Leverage:   agg.Leverage,
		TakeProfit: agg.TakeProfit,
		StopLoss:   agg.StopLoss,
		Votes:      agg.Votes,
		Details: map[string]any{
			"providers":        len(stage2),
			"stage1_decisions": counts[decision.Stage1.String()],
			"winner":           agg.Winner.Provider(),
		},
	}, stage2
}

// carryRound copies snap and adds the fused previous round so the next stage sees it.
func carryRound(snap decision.Snapshot, round []decision.Decision, weights map[string]float64) decision.Snapshot {
	if len(round) == 0 {
		return snap
	}
	agg, err := Aggregate(round, weights)
	if err != nil {
		return snap
	}
	extras := make(map[string]any, len(snap.Extras)+3)
	for k, v := range snap.Extras {
		extras[k] = v
	}
	extras["stage1_action"] = string(agg.Action)
	extras["stage1_confidence"] = agg.Confidence
	extras["stage1_providers"] = len(round)
	snap.Extras = extras
	return snap
}

func vetoResult(f *Failure) Result {
	return Result{
		Action:     decision.ActionNoTrade,
		Reason:     f.Message,
		ReasonCode: f.Code,
		Details:    f.Details,
	}
}

func normalizeSymbol(s string) string {
	return symbol.Canonical(s)
}

func normalizeSymbols(in []string) []string {
	return symbol.CanonicalList(in)
}
