package provider

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"quorum/internal/decision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision_FencedReply(t *testing.T) {
	raw := "Analysis done.\n```json\n" +
		`{"action":"buy","confidence":82,"leverage":12,"take_profit":71000,"stop_loss":66000,"qty_delta_factor":0.5,"reason":"breakout","extras":{"funding":0.01}}` +
		"\n```"
	d, err := ParseDecision(raw, "deepseek")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionLong, d.Action())
	assert.Equal(t, "BUY", d.Signal())
	assert.Equal(t, 82, d.Confidence())
	assert.Equal(t, "deepseek", d.Provider())
	assert.Equal(t, 71000.0, *d.TakeProfit())
	lev, ok := d.Raw().Get(decision.FieldLeverage)
	require.True(t, ok)
	assert.Equal(t, 12.0, lev)
	sl, ok := d.Raw().Get(decision.FieldStopLoss)
	require.True(t, ok)
	assert.Equal(t, 66000.0, sl)
	funding, ok := d.Raw().Get("funding")
	require.True(t, ok)
	assert.Equal(t, 0.01, funding)
}

func TestParseDecision_Errors(t *testing.T) {
	_, err := ParseDecision("no json here", "p")
	assert.Error(t, err)

	_, err = ParseDecision(`{"confidence":50}`, "p")
	assert.ErrorContains(t, err, "schema")

	_, err = ParseDecision(`{"action":"LONG","confidence":"high"}`, "p")
	assert.ErrorContains(t, err, "schema")

	_, err = ParseDecision(`{"action":"LONG","confidence":0.85}`, "p")
	assert.ErrorContains(t, err, "schema", "fractional confidence is not scaled to 0-100")

	d, err := ParseDecision(`{"action":"LONG","confidence":85.0}`, "p")
	require.NoError(t, err)
	assert.Equal(t, 85, d.Confidence())

	_, err = ParseDecision(`{"action":"LONG","confidence":150}`, "p")
	var ce *decision.ConstructionError
	assert.True(t, errors.As(err, &ce))
}

func TestParseDecision_ArrayAndWrapped(t *testing.T) {
	d, err := ParseDecision(`[{"action":"SHORT","confidence":60}]`, "p")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionShort, d.Action())

	d, err = ParseDecision(`{"decision":{"action":"none","confidence":95}}`, "p")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionNone, d.Action())
}

func TestStaticProvider_LoadAndDecide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	script := `
symbols:
  btcusdt:
    STAGE1: {action: LONG, confidence: 80, leverage: 10}
    STAGE2: {action: LONG, confidence: 85, leverage: 10, take_profit: .inf}
  "*":
    STAGE2: {action: HOLD, confidence: 40}
    STAGE1: {error: "upstream timeout"}
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))
	p, err := LoadStaticProvider("lab", true, path)
	require.NoError(t, err)

	ctx := context.Background()
	d, err := p.Decide(ctx, decision.Snapshot{}, decision.Stage2, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 85, d.Confidence())
	assert.True(t, math.IsInf(*d.TakeProfit(), 1))

	d, err = p.Decide(ctx, decision.Snapshot{}, decision.Stage2, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, d.Action())

	_, err = p.Decide(ctx, decision.Snapshot{}, decision.Stage1, "ETHUSDT")
	assert.ErrorContains(t, err, "upstream timeout")
}

func TestLoadStaticProvider_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols:\n  X:\n    STAGE1: {acton: LONG}\n"), 0o644))
	_, err := LoadStaticProvider("lab", true, path)
	assert.Error(t, err)
}

func TestStaticProvider_NotScripted(t *testing.T) {
	p := NewStaticProvider("lab", true, Script{})
	_, err := p.Decide(context.Background(), decision.Snapshot{}, decision.Stage1, "BTC")
	assert.ErrorIs(t, err, ErrNotScripted)
}

func TestOpenAIProvider_Decide(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": `{"action":"SHORT","confidence":64,"leverage":8}`}}},
		})
	}))
	defer srv.Close()

	client := &OpenAIChatClient{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "m", MaxRetries: 1}
	p := NewOpenAIProvider("gpt", true, client)
	snap := decision.Snapshot{Price: 100, ATR: decision.Float(2)}
	d, err := p.Decide(context.Background(), snap, decision.Stage1, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, decision.ActionShort, d.Action())
	assert.Equal(t, "gpt", d.Provider())
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAIProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("gpt", true, &OpenAIChatClient{BaseURL: srv.URL})
	_, err := p.Decide(context.Background(), decision.Snapshot{}, decision.Stage1, "ETHUSDT")
	assert.ErrorContains(t, err, "bad key")
}

func TestBuildPrompt(t *testing.T) {
	_, user := BuildPrompt(decision.Snapshot{Price: 65000, ATR: decision.Float(900), Extras: map[string]any{"oi": 1.5}}, decision.Stage2, "BTCUSDT")
	assert.Contains(t, user, "Symbol: BTCUSDT")
	assert.Contains(t, user, "Round: STAGE2")
	assert.Contains(t, user, "ATR: 900")
	assert.Contains(t, user, "oi: 1.5")
}

func TestBuildProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols: {}\n"), 0o644))

	ps, err := BuildProviders([]Config{
		{ID: "gpt", Kind: "openai", Model: "gpt-4o", Enabled: true},
		{ID: "lab", Kind: "static", ScriptPath: path, Enabled: false},
	}, 0)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "gpt", ps[0].Name())
	assert.True(t, ps[0].Enabled())
	assert.False(t, ps[1].Enabled())

	_, err = BuildProviders([]Config{{ID: "a"}, {ID: "a"}}, 0)
	assert.ErrorContains(t, err, "duplicate")

	_, err = BuildProviders([]Config{{ID: "a", Kind: "carrier-pigeon"}}, 0)
	assert.ErrorContains(t, err, "unknown kind")
}

func TestOpenAIChatClient_Limiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	client := &OpenAIChatClient{BaseURL: srv.URL, Limiter: newLimiter(0.001, 1)}
	out, err := client.Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, "", "again")
	assert.ErrorContains(t, err, "rate limiter")

	assert.Nil(t, newLimiter(0, 5))
	assert.Equal(t, 1, newLimiter(2, 0).Burst())
}
