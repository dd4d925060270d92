package rangecalc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rangePilot/internal/model"
)

func TestComputeOptimalRangeBrackets(t *testing.T) {
	policy := DefaultPolicy()

	prices := []float64{0.0001, 0.97, 1, 42.5, 2000, 3521.77, 1e9}
	vols := []float64{0, 0.01, 0.02, 0.049, 0.05, 0.0999, 0.1, 0.5}

	for _, price := range prices {
		for _, vol := range vols {
			r, err := ComputeOptimalRange(price, vol, policy)
			require.NoError(t, err)
			assert.Lessf(t, r.Lower, price, "price=%v vol=%v", price, vol)
			assert.Greaterf(t, r.Upper, price, "price=%v vol=%v", price, vol)
			assert.Zero(t, r.TickLower%policy.TickSpacing)
			assert.Zero(t, r.TickUpper%policy.TickSpacing)
		}
	}
}

func TestComputeOptimalRangeDeterministic(t *testing.T) {
	policy := DefaultPolicy()

	first, err := ComputeOptimalRange(2000, 0.034, policy)
	require.NoError(t, err)
	second, err := ComputeOptimalRange(2000, 0.034, policy)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBandMultiplierLadder(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name string
		vol  float64
		want float64
	}{
		{"calm", 0.01, 0.05},
		{"low boundary", 0.02, 0.08},
		{"medium", 0.04, 0.08},
		{"high", 0.07, 0.12},
		{"extreme", 0.25, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BandMultiplier(tt.vol, policy))
		})
	}
}

func TestComputeOptimalRangeInvalidInput(t *testing.T) {
	policy := DefaultPolicy()

	_, err := ComputeOptimalRange(0, 0.05, policy)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))

	_, err = ComputeOptimalRange(-10, 0.05, policy)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))

	_, err = ComputeOptimalRange(2000, -0.01, policy)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestTickRoundingDirections(t *testing.T) {
	policy := DefaultPolicy()

	r, err := ComputeOptimalRange(2000, 0.01, policy)
	require.NoError(t, err)

	// The snapped bounds must contain the raw ±5% band.
	assert.LessOrEqual(t, r.Lower, 2000*0.95)
	assert.GreaterOrEqual(t, r.Upper, 2000*1.05)
}

func TestPriceTickRoundTrip(t *testing.T) {
	for _, tick := range []int{-120000, -60, 0, 60, 76020} {
		price := TickToPrice(tick)
		assert.Equal(t, tick, PriceToTick(price*1.000001))
	}
}

func TestExpectedAPRBps(t *testing.T) {
	// 1/0.05*100 = 2000 bonus, capped at 3000.
	assert.Equal(t, 3000, ExpectedAPRBps(0.05))
	// 1/0.15*100 = 666 bonus.
	assert.Equal(t, 2166, ExpectedAPRBps(0.15))
	assert.Equal(t, 0, ExpectedAPRBps(0))
}
