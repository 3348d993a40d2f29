package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quorum/internal/consensus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Markdown(t *testing.T) {
	msg := Message{
		Icon:  "🛑",
		Title: "否决熔断 BTCUSDT",
		Sections: []Section{
			{Title: "概要", Lines: []string{"symbol: BTCUSDT", "  "}},
			{Title: "空", Lines: []string{""}},
			{Title: "详情", Lines: []string{"note: ```x```"}},
		},
		Footer: "RATE_LIMIT",
	}
	got := msg.Markdown()
	assert.True(t, strings.HasPrefix(got, "🛑 否决熔断 BTCUSDT\n\n```\n概要\n- symbol: BTCUSDT\n\n详情\n- note: '''x'''\n```"))
	assert.NotContains(t, got, "空")
	assert.True(t, strings.HasSuffix(got, "RATE_LIMIT"))

	assert.Empty(t, Message{}.Markdown())
	long := Message{Footer: strings.Repeat("x", maxMessageLen+10)}.Markdown()
	assert.Len(t, long, maxMessageLen+3)
}

func TestTelegram_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Backoff = time.Millisecond
	require.NoError(t, tg.SendText(context.Background(), "hello"))
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "hello", payload["text"])
}

func TestTelegram_Errors(t *testing.T) {
	assert.Error(t, NewTelegram("", "1").SendText(context.Background(), "x"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	tg := NewTelegram("T", "1")
	tg.BaseURL = srv.URL
	tg.Backoff = time.Millisecond
	assert.EqualError(t, tg.SendText(context.Background(), "x"), "telegram status=403")
}

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureNotifier) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureNotifier) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestAlerter_Throttles(t *testing.T) {
	out := &captureNotifier{}
	a := NewAlerter(out, false, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	limited := consensus.Event{
		Symbol:     "BTCUSDT",
		ReasonCode: consensus.ReasonRateLimit,
		Vetoed:     true,
		Reason:     "RATE_LIMIT: BTCUSDT blocked",
		Details:    map[string]any{"veto_count": 11},
	}
	require.NoError(t, a.Record(ctx, limited))
	require.NoError(t, a.Record(ctx, limited))
	require.NoError(t, a.Record(ctx, consensus.Event{Symbol: "BTCUSDT", ReasonCode: consensus.ReasonDeviation, Vetoed: true}))
	require.NoError(t, a.Record(ctx, consensus.Event{Symbol: "BTCUSDT", OK: true}))
	a.Wait()
	require.Len(t, out.sent(), 1)
	assert.Contains(t, out.sent()[0], "veto_count: 11")
	assert.Contains(t, out.sent()[0], "否决熔断 BTCUSDT")

	now = now.Add(2 * time.Minute)
	require.NoError(t, a.Record(ctx, limited))
	a.Wait()
	assert.Len(t, out.sent(), 2)
}

func TestAlerter_OnVeto(t *testing.T) {
	out := &captureNotifier{}
	a := NewAlerter(out, true, 0)
	ctx := context.Background()
	ev := consensus.Event{Symbol: "ETHUSDT", ReasonCode: consensus.ReasonNoneSignal, Vetoed: true}
	require.NoError(t, a.Record(ctx, ev))
	require.NoError(t, a.Record(ctx, ev))
	require.NoError(t, a.Record(ctx, consensus.Event{Symbol: "ETHUSDT", ReasonCode: consensus.ReasonNoDecisions}))
	a.Wait()
	assert.Len(t, out.sent(), 2, "zero cooldown disables throttling")
	assert.Contains(t, out.sent()[0], "共识否决 ETHUSDT")
}
