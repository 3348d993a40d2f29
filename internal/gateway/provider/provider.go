package provider

import (
	"context"

	"quorum/internal/decision"
)

// Provider is one independent decision source. The engine treats providers
// polymorphically and never branches on identity.
type Provider interface {
	Name() string
	Enabled() bool
	Decide(ctx context.Context, snap decision.Snapshot, stage decision.Stage, symbol string) (decision.Decision, error)
}

// Func adapts a function into a Provider; handy for tests and in-process advisors.
type Func struct {
	ID      string
	Off     bool
	DecideF func(ctx context.Context, snap decision.Snapshot, stage decision.Stage, symbol string) (decision.Decision, error)
}

func (f Func) Name() string  { return f.ID }
func (f Func) Enabled() bool { return !f.Off && f.DecideF != nil }

func (f Func) Decide(ctx context.Context, snap decision.Snapshot, stage decision.Stage, symbol string) (decision.Decision, error) {
	return f.DecideF(ctx, snap, stage, symbol)
}
