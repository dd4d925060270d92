package oracle

import (
	"math"
	"sync"

	"rangePilot/internal/model"
)

// SampleWindow keeps the most recent N price samples for volatility
// estimation. Older samples are dropped; nothing is persisted.
type SampleWindow struct {
	mu      sync.Mutex
	samples []model.PricePoint
	cap     int
}

func NewSampleWindow(capacity int) *SampleWindow {
	if capacity < 2 {
		capacity = 2
	}
	return &SampleWindow{cap: capacity}
}

// Add appends a sample, evicting the oldest once the window is full.
func (w *SampleWindow) Add(sample model.PricePoint) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, sample)
	if len(w.samples) > w.cap {
		w.samples = w.samples[len(w.samples)-w.cap:]
	}
}

// Len returns the number of retained samples.
func (w *SampleWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Volatility estimates volatility as the standard deviation of simple
// returns between consecutive samples. With fewer than two samples it
// returns zero, which maps to the narrowest concentration band.
func (w *SampleWindow) Volatility() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(w.samples)-1)
	for i := 1; i < len(w.samples); i++ {
		prev := w.samples[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, (w.samples[i].Value-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}
