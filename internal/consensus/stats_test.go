package consensus

import (
	"testing"

	"quorum/internal/decision"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 20.0, Median([]float64{10, 20, 30}))
	assert.Equal(t, 25.0, Median([]float64{10, 20, 30, 40}))
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 20.0, Median([]float64{30, 10, 20}))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in, "input must not be reordered")
}

func TestTrimmedMean(t *testing.T) {
	f := decision.Float
	assert.Equal(t, 20.0, TrimmedMean([]*float64{f(10), f(20), f(30)}))
	assert.Equal(t, 25.0, TrimmedMean([]*float64{f(10), f(20), f(30), f(40)}))
	assert.Equal(t, 15.0, TrimmedMean([]*float64{f(10), nil, f(20)}))
	assert.Equal(t, 7.0, TrimmedMean([]*float64{f(7)}))
	assert.Equal(t, 0.0, TrimmedMean([]*float64{nil, nil}))
	assert.Equal(t, 20.0, TrimmedMean([]*float64{f(1000), f(20), nil, f(10), f(30), f(-500)}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(5, 1, 10))
	assert.Equal(t, 1.0, Clamp(0.5, 1, 10))
	assert.Equal(t, 10.0, Clamp(15, 1, 10))
}
