package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogReturns(t *testing.T) {
	r := LogReturns([]float64{100, 110, 0, 121})
	require.Len(t, r, 3)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Equal(t, 0.0, r[1])
	assert.Equal(t, 0.0, r[2])
	assert.Nil(t, LogReturns([]float64{1}))
}

func TestRealizedVolatility(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0.01}, 252))
	v := RealizedVolatility([]float64{0.01, -0.01, 0.01, -0.01}, 252)
	_, std := MeanStd([]float64{0.01, -0.01, 0.01, -0.01})
	assert.InDelta(t, std*math.Sqrt(252), v, 1e-12)
}

func TestMomentumZScore(t *testing.T) {
	up := []float64{0.01, 0.012, 0.009, 0.011, 0.01}
	down := []float64{-0.01, -0.012, -0.009, -0.011, -0.01}
	assert.Greater(t, MomentumZScore(up), 5.0)
	assert.Less(t, MomentumZScore(down), -5.0)
	assert.Equal(t, 0.0, MomentumZScore([]float64{0, 0, 0}))
}

func TestMeanPairwiseCorrelation(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, -0.01, 0.02}
	b := []float64{0.02, -0.04, 0.06, -0.02, 0.04}
	c := []float64{-0.01, 0.02, -0.03, 0.01, -0.02}

	got, ok := MeanPairwiseCorrelation(map[string][]float64{"A": a, "B": b})
	require.True(t, ok)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, ok = MeanPairwiseCorrelation(map[string][]float64{"A": a, "B": b, "C": c})
	require.True(t, ok)
	assert.InDelta(t, -1.0/3.0, got, 1e-9)

	_, ok = MeanPairwiseCorrelation(map[string][]float64{"A": a})
	assert.False(t, ok)
}
