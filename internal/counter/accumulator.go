// Package counter turns monotonically increasing OS counters, sampled at
// irregular intervals, into smoothed per-second rates.
package counter

import (
	"sort"
	"sync"

	"github.com/ethpandaops/perfhud/internal/clock"
)

// Set is one raw reading of a group of counters keyed by metric name.
type Set map[string]uint64

// Clone returns a copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}

	return out
}

// Names returns the metric names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

// Discontinuity describes a counter that went backwards between two
// snapshots, typically after a process restart or wraparound.
type Discontinuity struct {
	Metric   string
	Previous uint64
	Current  uint64
}

// DiscontinuityFunc is notified of every clamped delta. It runs on the
// producer goroutine while the accumulator lock is held and must not call
// back into the accumulator.
type DiscontinuityFunc func(d Discontinuity)

// Accumulator sums counter deltas until the update interval has elapsed,
// then folds the resulting per-second rate into a two-sample recursive
// average and starts a new bucket.
//
// A counter that decreases between snapshots contributes a zero delta and
// is reported as a discontinuity.
type Accumulator struct {
	clk clock.Clock

	mu              sync.RWMutex
	initialized     bool
	last            Set
	accumulated     Set
	lastUpdate      clock.Tick
	elapsed         int64
	smoothed        map[string]float64
	hasRate         bool
	resets          uint64
	discontinuities uint64
	onDiscontinuity DiscontinuityFunc
}

// New creates an accumulator in the cold-start state.
func New(clk clock.Clock) *Accumulator {
	return &Accumulator{
		clk:         clk,
		accumulated: make(Set, 8),
		smoothed:    make(map[string]float64, 8),
	}
}

// OnDiscontinuity registers a hook for clamped deltas.
func (a *Accumulator) OnDiscontinuity(fn DiscontinuityFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.onDiscontinuity = fn
}

// Update feeds a raw snapshot taken at now. It returns true when the
// accumulated bucket reached the interval and rates were recomputed.
//
// The first call only records the snapshot: no rate can be derived from a
// single reading.
func (a *Accumulator) Update(snapshot Set, now clock.Tick, intervalSeconds float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		a.initialized = true
		a.last = snapshot.Clone()
		a.lastUpdate = now
		a.elapsed = 0

		for k := range a.accumulated {
			delete(a.accumulated, k)
		}

		return false
	}

	for name, cur := range snapshot {
		prev, seen := a.last[name]
		if !seen {
			// A metric appearing mid-stream starts cold.
			continue
		}

		if cur < prev {
			a.discontinuities++

			if a.onDiscontinuity != nil {
				a.onDiscontinuity(Discontinuity{Metric: name, Previous: prev, Current: cur})
			}

			continue
		}

		a.accumulated[name] += cur - prev
	}

	if dt := int64(now - a.lastUpdate); dt > 0 {
		a.elapsed += dt
	}

	a.last = snapshot.Clone()
	a.lastUpdate = now

	interval := a.clk.SecondsToTicks(intervalSeconds)
	if a.elapsed < interval || a.elapsed == 0 {
		return false
	}

	seconds := a.clk.TicksToSeconds(a.elapsed)

	for name := range a.last {
		inst := float64(a.accumulated[name]) / seconds
		a.smoothed[name] = (a.smoothed[name] + inst) / 2
	}

	for k := range a.accumulated {
		delete(a.accumulated, k)
	}

	a.elapsed = 0
	a.hasRate = true
	a.resets++

	return true
}

// Rate returns the smoothed per-second rate of metric. The boolean is
// false until the first bucket has completed.
func (a *Accumulator) Rate(metric string) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.hasRate {
		return 0, false
	}

	v, ok := a.smoothed[metric]

	return v, ok
}

// Rates returns a copy of every smoothed rate. Nil before the first
// completed bucket.
func (a *Accumulator) Rates() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.hasRate {
		return nil
	}

	out := make(map[string]float64, len(a.smoothed))
	for k, v := range a.smoothed {
		out[k] = v
	}

	return out
}

// Accumulated returns the delta sum for metric in the open bucket.
func (a *Accumulator) Accumulated(metric string) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.accumulated[metric]
}

// ElapsedSeconds returns the time covered by the open bucket.
func (a *Accumulator) ElapsedSeconds() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.clk.TicksToSeconds(a.elapsed)
}

// Initialized reports whether a first snapshot has been recorded.
func (a *Accumulator) Initialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.initialized
}

// Resets returns the number of completed buckets.
func (a *Accumulator) Resets() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.resets
}

// Discontinuities returns the number of clamped deltas.
func (a *Accumulator) Discontinuities() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.discontinuities
}

// Reset returns the accumulator to the cold-start state. Smoothed rates
// are discarded.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.initialized = false
	a.last = nil
	a.elapsed = 0
	a.hasRate = false

	for k := range a.accumulated {
		delete(a.accumulated, k)
	}

	for k := range a.smoothed {
		delete(a.smoothed, k)
	}
}
