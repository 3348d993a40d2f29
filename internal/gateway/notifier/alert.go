package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quorum/internal/consensus"
	"quorum/internal/logger"
)

// Alerter turns consensus events into notifications. RATE_LIMIT always alerts;
// other vetoes only when onVeto is set. Each symbol/code pair alerts at most once
// per cooldown. Sending happens off the decision path.
type Alerter struct {
	out      TextNotifier
	onVeto   bool
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
	wg   sync.WaitGroup
}

var _ consensus.EventSink = (*Alerter)(nil)

func NewAlerter(out TextNotifier, onVeto bool, cooldown time.Duration) *Alerter {
	return &Alerter{out: out, onVeto: onVeto, cooldown: cooldown, now: time.Now, last: make(map[string]time.Time)}
}

func (a *Alerter) Record(_ context.Context, ev consensus.Event) error {
	if a == nil || a.out == nil || ev.OK {
		return nil
	}
	if ev.ReasonCode != consensus.ReasonRateLimit && !(a.onVeto && ev.Vetoed) {
		return nil
	}
	if !a.claim(ev.Symbol + "|" + string(ev.ReasonCode)) {
		return nil
	}
	text := alertMessage(ev).Markdown()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.out.SendText(ctx, text); err != nil {
			logger.Warnf("alert send failed symbol=%s code=%s: %v", ev.Symbol, ev.ReasonCode, err)
		}
	}()
	return nil
}

// Wait blocks until pending sends finish.
func (a *Alerter) Wait() { a.wg.Wait() }

func (a *Alerter) claim(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if last, ok := a.last[key]; ok && a.cooldown > 0 && now.Sub(last) < a.cooldown {
		return false
	}
	a.last[key] = now
	return true
}

func alertMessage(ev consensus.Event) Message {
	icon, title := "⚠️", "共识否决"
	if ev.ReasonCode == consensus.ReasonRateLimit {
		icon, title = "🛑", "否决熔断"
	}
	info := []string{
		"symbol: " + ev.Symbol,
		"code: " + string(ev.ReasonCode),
		"cycle: " + ev.CycleID,
		fmt.Sprintf("threshold: %.4f (%s)", ev.Threshold, ev.ThresholdSource),
	}
	keys := make([]string, 0, len(ev.Details))
	for k := range ev.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	details := make([]string, 0, len(keys))
	for _, k := range keys {
		details = append(details, fmt.Sprintf("%s: %v", k, ev.Details[k]))
	}
	return Message{
		Icon:      icon,
		Title:     title + " " + ev.Symbol,
		Sections:  []Section{{Title: "概要", Lines: info}, {Title: "详情", Lines: details}},
		Footer:    ev.Reason,
		Timestamp: ev.Timestamp,
	}
}
