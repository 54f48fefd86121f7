// Package market
package market

import (
	"sync"
	"time"
)

// MinRetention is the smallest series length worth keeping: the slow SMA
// window the strategy depends on.
const MinRetention = 50

// DefaultRetention is how many closes a series keeps unless told otherwise.
const DefaultRetention = 200

// Sample is one (timestamp, close) observation for an instrument.
type Sample struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// PriceSeries is an append-only, bounded window of close prices for one
// instrument. Appends drop the oldest samples past the retention limit.
type PriceSeries struct {
	mu        sync.RWMutex
	coin      string
	retention int
	samples   []Sample
}

// NewPriceSeries creates a series for coin. Retention below MinRetention is
// raised to MinRetention.
func NewPriceSeries(coin string, retention int) *PriceSeries {
	if retention < MinRetention {
		retention = MinRetention
	}
	return &PriceSeries{
		coin:      coin,
		retention: retention,
		samples:   make([]Sample, 0, retention),
	}
}

func (ps *PriceSeries) Coin() string { return ps.coin }

// Append adds one sample. Samples are expected in time order; an append not
// newer than the latest sample is ignored.
func (ps *PriceSeries) Append(s Sample) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if n := len(ps.samples); n > 0 && !s.Time.After(ps.samples[n-1].Time) {
		return
	}
	ps.samples = append(ps.samples, s)
	if len(ps.samples) > ps.retention {
		excess := len(ps.samples) - ps.retention
		ps.samples = append(ps.samples[:0], ps.samples[excess:]...)
	}
}

// Replace swaps the whole window for a freshly fetched one, keeping only the
// newest retention samples.
func (ps *PriceSeries) Replace(samples []Sample) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if len(samples) > ps.retention {
		samples = samples[len(samples)-ps.retention:]
	}
	ps.samples = append(ps.samples[:0:0], samples...)
}

// Closes returns a snapshot of the close prices, oldest first.
func (ps *PriceSeries) Closes() []float64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	closes := make([]float64, len(ps.samples))
	for i, s := range ps.samples {
		closes[i] = s.Close
	}
	return closes
}

// Len returns the number of retained samples.
func (ps *PriceSeries) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.samples)
}

// Last returns the newest sample, if any.
func (ps *PriceSeries) Last() (Sample, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if len(ps.samples) == 0 {
		return Sample{}, false
	}
	return ps.samples[len(ps.samples)-1], true
}
