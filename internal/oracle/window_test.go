package oracle

import (
	"math"
	"testing"
	"time"

	"rangePilot/internal/model"
)

func sampleAt(value float64) model.PricePoint {
	return model.PricePoint{Value: value, ObservedAt: time.Now()}
}

func TestVolatilityEmptyWindow(t *testing.T) {
	w := NewSampleWindow(8)
	if got := w.Volatility(); got != 0 {
		t.Fatalf("expected zero volatility, got %v", got)
	}

	w.Add(sampleAt(2000))
	if got := w.Volatility(); got != 0 {
		t.Fatalf("expected zero volatility with one sample, got %v", got)
	}
}

func TestVolatilityConstantSeries(t *testing.T) {
	w := NewSampleWindow(8)
	for i := 0; i < 5; i++ {
		w.Add(sampleAt(2000))
	}
	if got := w.Volatility(); got != 0 {
		t.Fatalf("expected zero volatility for flat series, got %v", got)
	}
}

func TestVolatilityKnownSeries(t *testing.T) {
	w := NewSampleWindow(8)
	// Returns are +10% then -10%: mean 0, stddev 0.1.
	w.Add(sampleAt(100))
	w.Add(sampleAt(110))
	w.Add(sampleAt(99))

	got := w.Volatility()
	if math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("volatility mismatch: got %v want 0.1", got)
	}
}

func TestWindowEviction(t *testing.T) {
	w := NewSampleWindow(3)
	for i := 1; i <= 10; i++ {
		w.Add(sampleAt(float64(i)))
	}
	if got := w.Len(); got != 3 {
		t.Fatalf("expected 3 retained samples, got %d", got)
	}
}
