package consensus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimitWindow is the rolling interval over which vetoes are counted per symbol.
const RateLimitWindow = time.Minute

// RateLimitState is the per-symbol veto counter and circuit flag.
type RateLimitState struct {
	Symbol      string    `json:"symbol"`
	VetoCount   int       `json:"veto_count"`
	WindowStart time.Time `json:"window_start"`
	LastVeto    time.Time `json:"last_veto"`
	CircuitOpen bool      `json:"circuit_open"`
	MaxPerMin   int       `json:"max_veto_per_minute"`
}

// LimitStore gates processing per symbol. The in-memory VetoLimiter is the only
// implementation; state is never shared across replicas.
type LimitStore interface {
	// Guard runs fn only when symbol is allowed; fn reports whether it produced a veto.
	// Check, fn and increment are serialized per symbol.
	Guard(symbol string, fn func() (vetoed bool)) (allowed bool)
	Allow(symbol string) bool
	RecordVeto(symbol string) RateLimitState
	State(symbol string) RateLimitState
	Reset(symbol string)
	SetMax(max int)
}

type limitEntry struct {
	mu     sync.Mutex
	state  RateLimitState
	vetoes []time.Time // 窗口内的否决时间，升序
}

// VetoLimiter counts vetoes per symbol in a rolling one-minute window and opens a
// per-symbol circuit when the count exceeds the configured maximum. A maximum <= 0
// disables limiting.
type VetoLimiter struct {
	mu      sync.RWMutex
	entries map[string]*limitEntry
	max     atomic.Int64
	window  time.Duration
	now     func() time.Time
}

var _ LimitStore = (*VetoLimiter)(nil)

// NewVetoLimiter builds a limiter; now may be nil to use the wall clock.
func NewVetoLimiter(maxPerMinute int, now func() time.Time) *VetoLimiter {
	if now == nil {
		now = time.Now
	}
	l := &VetoLimiter{
		entries: make(map[string]*limitEntry),
		window:  RateLimitWindow,
		now:     now,
	}
	l.max.Store(int64(maxPerMinute))
	return l
}

// SetMax updates the limit for every symbol (hot reload).
func (l *VetoLimiter) SetMax(max int) {
	l.max.Store(int64(max))
}

func (l *VetoLimiter) entry(symbol string) *limitEntry {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e
	}
	e = &limitEntry{state: RateLimitState{Symbol: key}}
	l.entries[key] = e
	return e
}

// Guard implements LimitStore.
func (l *VetoLimiter) Guard(symbol string, fn func() bool) bool {
	e := l.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !l.allowLocked(e) {
		return false
	}
	if fn() {
		l.recordLocked(e)
	}
	return true
}

// Allow reports false when the circuit is open or the window count exceeds the maximum.
func (l *VetoLimiter) Allow(symbol string) bool {
	e := l.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	return l.allowLocked(e)
}

// RecordVeto counts one veto and opens the circuit once the maximum is exceeded.
func (l *VetoLimiter) RecordVeto(symbol string) RateLimitState {
	e := l.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	l.recordLocked(e)
	return e.state
}

// State returns a copy of the current state for symbol.
func (l *VetoLimiter) State(symbol string) RateLimitState {
	e := l.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	l.rollLocked(e)
	st := e.state
	st.MaxPerMin = int(l.max.Load())
	return st
}

// Reset clears the counter and closes the circuit for symbol.
func (l *VetoLimiter) Reset(symbol string) {
	e := l.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = RateLimitState{Symbol: e.state.Symbol}
	e.vetoes = nil
}

func (l *VetoLimiter) allowLocked(e *limitEntry) bool {
	max := int(l.max.Load())
	if max <= 0 {
		return true
	}
	l.rollLocked(e)
	return !e.state.CircuitOpen && e.state.VetoCount <= max
}

func (l *VetoLimiter) recordLocked(e *limitEntry) {
	now := l.now()
	e.vetoes = append(e.vetoes, now)
	e.state.LastVeto = now
	l.rollLocked(e)
}

// rollLocked drops vetoes older than the window and recomputes count and circuit
// from what remains, so the circuit stays open while more than max vetoes fall
// inside the trailing window.
func (l *VetoLimiter) rollLocked(e *limitEntry) {
	cutoff := l.now().Add(-l.window)
	keep := 0
	for keep < len(e.vetoes) && !e.vetoes[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		e.vetoes = append(e.vetoes[:0], e.vetoes[keep:]...)
	}
	e.state.VetoCount = len(e.vetoes)
	e.state.WindowStart = time.Time{}
	if len(e.vetoes) > 0 {
		e.state.WindowStart = e.vetoes[0]
	}
	max := int(l.max.Load())
	e.state.CircuitOpen = max > 0 && e.state.VetoCount > max
}
