// Package stats implements fixed-capacity sample windows and the reducers
// evaluated over their trailing time span.
package stats

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ethpandaops/perfhud/internal/clock"
)

// DefaultCapacity is the number of samples a Window retains.
const DefaultCapacity = 120

// SyncPolicy selects how readers are synchronised with the producer.
type SyncPolicy int

const (
	// Locked guards every operation with a per-window RWMutex. Readers
	// always observe whole samples.
	Locked SyncPolicy = iota
	// Relaxed skips the lock. Slots are still read and written
	// atomically, but a reader racing the producer may pair a value with
	// the timestamp of a neighbouring write. Intended for display-only
	// consumers.
	Relaxed
)

// String returns the config name of the policy.
func (p SyncPolicy) String() string {
	switch p {
	case Locked:
		return "locked"
	case Relaxed:
		return "relaxed"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseSyncPolicy parses a config value. Empty selects Locked.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch s {
	case "", "locked":
		return Locked, nil
	case "relaxed":
		return Relaxed, nil
	default:
		return Locked, fmt.Errorf("unknown sync policy %q", s)
	}
}

// Sample is a single recorded value.
type Sample struct {
	Value float64
	When  clock.Tick
}

type slot struct {
	value atomic.Uint64
	when  atomic.Int64
}

// Window is a circular buffer of timestamped samples. Slot i holds the
// sample written at absolute index i mod capacity; samples older than a
// query's window are skipped, never removed.
//
// A Window has exactly one producer. Queries may run concurrently with it.
type Window struct {
	clk    clock.Clock
	policy SyncPolicy

	mu     sync.RWMutex
	slots  []slot
	writes atomic.Uint64
}

// NewWindow creates a window. A non-positive capacity selects
// DefaultCapacity.
func NewWindow(clk clock.Clock, capacity int, policy SyncPolicy) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Window{
		clk:    clk,
		policy: policy,
		slots:  make([]slot, capacity),
	}
}

// Add records a sample, overwriting the oldest once the window is full.
func (w *Window) Add(value float64, when clock.Tick) {
	if w.policy == Locked {
		w.mu.Lock()
		defer w.mu.Unlock()
	}

	n := w.writes.Load()
	s := &w.slots[n%uint64(len(w.slots))]
	s.value.Store(math.Float64bits(value))
	s.when.Store(int64(when))
	w.writes.Store(n + 1)
}

// Cap returns the fixed capacity.
func (w *Window) Cap() int {
	return len(w.slots)
}

// Len returns the number of slots holding a sample, stale or not.
func (w *Window) Len() int {
	n := w.writes.Load()
	if n > uint64(len(w.slots)) {
		return len(w.slots)
	}

	return int(n)
}

// Writes returns the total number of samples ever added.
func (w *Window) Writes() uint64 {
	return w.writes.Load()
}

// Policy returns the synchronisation policy.
func (w *Window) Policy() SyncPolicy {
	return w.policy
}

// Clock returns the clock used for relative queries.
func (w *Window) Clock() clock.Clock {
	return w.clk
}

// Threshold converts a lookback in seconds into an absolute tick.
func (w *Window) Threshold(seconds float64) clock.Tick {
	return clock.Threshold(w.clk, seconds)
}

// each visits qualifying samples oldest first.
func (w *Window) each(threshold clock.Tick, fn func(Sample)) {
	if w.policy == Locked {
		w.mu.RLock()
		defer w.mu.RUnlock()
	}

	n := w.writes.Load()
	size := uint64(len(w.slots))

	var start uint64
	if n > size {
		start = n - size
	}

	for i := start; i < n; i++ {
		s := &w.slots[i%size]

		when := clock.Tick(s.when.Load())
		if when < threshold {
			continue
		}

		fn(Sample{Value: math.Float64frombits(s.value.Load()), When: when})
	}
}

// Samples returns the qualifying samples oldest first.
func (w *Window) Samples(seconds float64) []Sample {
	return w.SamplesSince(w.Threshold(seconds))
}

// SamplesSince returns samples recorded at or after threshold.
func (w *Window) SamplesSince(threshold clock.Tick) []Sample {
	out := make([]Sample, 0, w.Len())

	w.each(threshold, func(s Sample) {
		out = append(out, s)
	})

	return out
}

// Mean averages the samples in the trailing window. NaN when empty.
func (w *Window) Mean(seconds float64) float64 {
	return w.MeanSince(w.Threshold(seconds))
}

// MeanSince averages samples recorded at or after threshold.
func (w *Window) MeanSince(threshold clock.Tick) float64 {
	var (
		sum   float64
		count int
	)

	w.each(threshold, func(s Sample) {
		sum += s.Value
		count++
	})

	if count == 0 {
		return math.NaN()
	}

	return sum / float64(count)
}

// Variance is the population variance around the given mean. The mean is
// not recomputed; pass the value returned by Mean for the same window.
func (w *Window) Variance(mean, seconds float64) float64 {
	return w.VarianceSince(mean, w.Threshold(seconds))
}

// VarianceSince is Variance over an absolute threshold.
func (w *Window) VarianceSince(mean float64, threshold clock.Tick) float64 {
	var (
		sum   float64
		count int
	)

	w.each(threshold, func(s Sample) {
		d := s.Value - mean
		sum += d * d
		count++
	})

	if count == 0 {
		return math.NaN()
	}

	return sum / float64(count)
}

// Min returns the smallest sample in the window, or +Inf when empty.
func (w *Window) Min(seconds float64) float64 {
	return w.MinSince(w.Threshold(seconds))
}

// MinSince is Min over an absolute threshold.
func (w *Window) MinSince(threshold clock.Tick) float64 {
	lo := math.Inf(1)

	w.each(threshold, func(s Sample) {
		if s.Value < lo {
			lo = s.Value
		}
	})

	return lo
}

// Max returns the largest sample in the window, or -Inf when empty.
func (w *Window) Max(seconds float64) float64 {
	return w.MaxSince(w.Threshold(seconds))
}

// MaxSince is Max over an absolute threshold.
func (w *Window) MaxSince(threshold clock.Tick) float64 {
	hi := math.Inf(-1)

	w.each(threshold, func(s Sample) {
		if s.Value > hi {
			hi = s.Value
		}
	})

	return hi
}

// Count returns the number of samples in the window.
func (w *Window) Count(seconds float64) int {
	return w.CountSince(w.Threshold(seconds))
}

// CountSince is Count over an absolute threshold.
func (w *Window) CountSince(threshold clock.Tick) int {
	var count int

	w.each(threshold, func(Sample) {
		count++
	})

	return count
}

// Hitches counts runs of samples above tolerance*mean. A run of
// consecutive over-threshold samples counts once.
func (w *Window) Hitches(tolerance, mean, seconds float64) int {
	return w.HitchesSince(tolerance, mean, w.Threshold(seconds))
}

// HitchesSince is Hitches over an absolute threshold.
func (w *Window) HitchesSince(tolerance, mean float64, threshold clock.Tick) int {
	edge := newEdgeCounter(tolerance * mean)

	w.each(threshold, func(s Sample) {
		edge.observe(s.Value)
	})

	return edge.count
}
