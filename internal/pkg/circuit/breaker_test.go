package circuit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker_Lifecycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := New(Config{Name: "gpt", Threshold: 2, Cooldown: time.Minute, Now: func() time.Time { return now }})

	require.NoError(t, b.Allow())
	b.Done(errBoom)
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Allow())
	b.Done(errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen, "only one probe while half-open")

	b.Done(errBoom)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	b.Done(nil)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(Config{Name: "gpt", Threshold: 2, Cooldown: time.Minute})
	b.Done(errBoom)
	b.Done(nil)
	b.Done(errBoom)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ZeroThresholdNeverOpens(t *testing.T) {
	b := New(Config{Name: "gpt", Cooldown: time.Minute})
	for i := 0; i < 10; i++ {
		b.Done(errBoom)
	}
	assert.NoError(t, b.Allow())
}

func TestBreaker_OnChange(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []State
	)
	b := New(Config{Name: "provider:gpt", Threshold: 1, Cooldown: time.Hour})
	b.SetOnChange(func(name string, _, to State) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "provider:gpt", name)
		seen = append(seen, to)
	})
	b.Done(errBoom)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == StateOpen
	}, time.Second, 10*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "HALF-OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(9).String())
}
