package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quorum/internal/decision"
	"quorum/internal/gateway/provider"
	"quorum/internal/logger"
	"quorum/internal/pkg/circuit"
	"quorum/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Dispatcher fans a round out to every enabled provider. A provider that errors, panics,
// times out or sits behind an open breaker contributes nothing to that round.
type Dispatcher struct {
	providers []provider.Provider

	mu       sync.Mutex
	timeout  time.Duration
	breakers map[string]*circuit.Breaker
	failures int
	cooldown time.Duration
	onState  circuit.ChangeFunc
}

// NewDispatcher builds a dispatcher over providers in their configured order.
func NewDispatcher(providers []provider.Provider, timeout time.Duration, failureThreshold int, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{
		providers: providers,
		timeout:   timeout,
		breakers:  make(map[string]*circuit.Breaker),
		failures:  failureThreshold,
		cooldown:  cooldown,
	}
}

// SetTimeout changes the per-provider timeout (hot reload).
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.mu.Lock()
	d.timeout = timeout
	d.mu.Unlock()
}

// SetBreakerHandler observes provider breaker transitions.
func (d *Dispatcher) SetBreakerHandler(fn circuit.ChangeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onState = fn
	for _, b := range d.breakers {
		b.SetOnChange(fn)
	}
}

// Providers returns the configured providers.
func (d *Dispatcher) Providers() []provider.Provider {
	return d.providers
}

// Enabled counts providers that report themselves enabled.
func (d *Dispatcher) Enabled() int {
	n := 0
	for _, p := range d.providers {
		if p != nil && p.Enabled() {
			n++
		}
	}
	return n
}

// Collect queries every enabled provider concurrently and waits for all of them (or
// their timeouts). Results keep provider order so aggregation is reproducible.
func (d *Dispatcher) Collect(ctx context.Context, snap decision.Snapshot, stage decision.Stage, symbol string) []decision.Decision {
	if d.Enabled() == 0 {
		return nil
	}
	d.mu.Lock()
	timeout := d.timeout
	d.mu.Unlock()

	slots := make([]*decision.Decision, len(d.providers))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, p := range d.providers {
		if p == nil || !p.Enabled() {
			continue
		}
		breaker := d.breaker(p.Name())
		if err := breaker.Allow(); err != nil {
			logger.Warnf("provider %s skipped for %s %s: %v", p.Name(), symbol, stage, err)
			continue
		}
		i, p := i, p
		eg.Go(func() error {
			spanCtx, span := tracing.Start(egCtx, "provider.decide",
				attribute.String("provider", p.Name()),
				attribute.String("stage", stage.String()),
				attribute.String("symbol", symbol),
			)
			defer span.End()
			dec, err := d.invokeSafe(spanCtx, p, timeout, snap, stage, symbol)
			breaker.Done(err)
			if err != nil {
				tracing.Fail(span, err)
				logger.Warnf("provider %s %s %s failed: %v", p.Name(), symbol, stage, err)
				return nil
			}
			span.SetAttributes(attribute.String("action", string(dec.Action())), attribute.Int("confidence", dec.Confidence()))
			slots[i] = &dec
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]decision.Decision, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (d *Dispatcher) invokeSafe(parent context.Context, p provider.Provider, timeout time.Duration, snap decision.Snapshot, stage decision.Stage, symbol string) (dec decision.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	type reply struct {
		dec decision.Decision
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		dec, err := p.Decide(ctx, snap, stage, symbol)
		ch <- reply{dec: dec, err: err}
	}()

	select {
	case <-ctx.Done():
		return decision.Decision{}, fmt.Errorf("%s: %w", p.Name(), ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return decision.Decision{}, r.err
		}
		return r.dec.WithProvider(p.Name()), nil
	}
}

func (d *Dispatcher) breaker(name string) *circuit.Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[name]
	if !ok {
		b = circuit.New(circuit.Config{
			Name:      "provider:" + name,
			Threshold: d.failures,
			Cooldown:  d.cooldown,
			OnChange:  d.onState,
		})
		d.breakers[name] = b
	}
	return b
}
