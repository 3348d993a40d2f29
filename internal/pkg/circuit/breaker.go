// Package circuit guards a flaky dependency: after Threshold consecutive failures the
// breaker opens and rejects calls until Cooldown elapses, then admits a single probe.
package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"quorum/internal/logger"
)

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = errors.New("circuit open")

// State 数值即 metrics 中的 gauge 值。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"CLOSED", "OPEN", "HALF-OPEN"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// ChangeFunc observes transitions; it runs on its own goroutine.
type ChangeFunc func(name string, from, to State)

type Config struct {
	Name      string
	Threshold int // <= 0 never opens
	Cooldown  time.Duration
	Now       func() time.Time
	OnChange  ChangeFunc
}

type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func New(cfg Config) *Breaker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

func (b *Breaker) Name() string { return b.cfg.Name }

// SetOnChange replaces the transition observer.
func (b *Breaker) SetOnChange(fn ChangeFunc) {
	b.mu.Lock()
	b.cfg.OnChange = fn
	b.mu.Unlock()
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow admits a call or returns ErrOpen. Every admitted call must be followed by Done.
// Half-open admits one probe at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return fmt.Errorf("%s: %w", b.cfg.Name, ErrOpen)
		}
		b.moveTo(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%s: %w (probe in flight)", b.cfg.Name, ErrOpen)
		}
		b.probing = true
	}
	return nil
}

// Done reports the outcome of an admitted call.
func (b *Breaker) Done(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err == nil {
		b.failures = 0
		if b.state != StateClosed {
			b.moveTo(StateClosed)
		}
		return
	}
	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.trip()
	case b.state == StateClosed && b.cfg.Threshold > 0 && b.failures >= b.cfg.Threshold:
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.cfg.Now()
	b.moveTo(StateOpen)
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	b.state = to
	if fn := b.cfg.OnChange; fn != nil {
		go fn(b.cfg.Name, from, to)
		return
	}
	logger.Warnf("熔断器 %s: %s -> %s (failures=%d/%d, cooldown=%s)",
		b.cfg.Name, from, to, b.failures, b.cfg.Threshold, b.cfg.Cooldown)
}
