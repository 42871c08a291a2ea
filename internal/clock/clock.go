// Package clock provides the monotonic tick source shared by the sampling
// engine and a wall-clock aligned report window clock.
package clock

import (
	"math"
	"sync/atomic"
	"time"
)

// Tick is a reading of a monotonic tick counter.
type Tick int64

// NanosPerSecond is the tick frequency of the default clock.
const NanosPerSecond int64 = int64(time.Second)

// Clock is a monotonic high-resolution tick source.
type Clock interface {
	// Now returns the current tick count.
	Now() Tick
	// TicksPerSecond returns the counter frequency. Constant for the
	// lifetime of the clock.
	TicksPerSecond() int64
	// SecondsToTicks converts a duration in seconds into ticks.
	SecondsToTicks(seconds float64) int64
	// TicksToSeconds converts a tick delta into seconds.
	TicksToSeconds(ticks int64) float64
}

// New returns the process monotonic clock with nanosecond ticks.
func New() Clock {
	return &monotonic{}
}

type monotonic struct{}

func (m *monotonic) Now() Tick {
	return Tick(nanotime())
}

func (m *monotonic) TicksPerSecond() int64 {
	return NanosPerSecond
}

func (m *monotonic) SecondsToTicks(seconds float64) int64 {
	return secondsToTicks(seconds, NanosPerSecond)
}

func (m *monotonic) TicksToSeconds(ticks int64) float64 {
	return float64(ticks) / float64(NanosPerSecond)
}

var epoch = time.Now()

// fallbackNanotime reads the runtime monotonic clock relative to process
// start.
func fallbackNanotime() int64 {
	return int64(time.Since(epoch))
}

// secondsToTicks saturates instead of overflowing for very large or
// infinite inputs. Negative and NaN inputs map to zero.
func secondsToTicks(seconds float64, tps int64) int64 {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}

	ticks := seconds * float64(tps)
	if ticks >= math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(ticks)
}

// Threshold returns the absolute tick at which a trailing window of the
// given length begins. An infinite window yields the smallest tick so that
// every sample qualifies.
func Threshold(c Clock, seconds float64) Tick {
	now := c.Now()
	span := c.SecondsToTicks(seconds)

	if span == math.MaxInt64 || int64(now) < math.MinInt64+span {
		return Tick(math.MinInt64)
	}

	return now - Tick(span)
}

// Manual is a Clock whose time only moves when told to. Safe for
// concurrent use.
type Manual struct {
	now atomic.Int64
	tps int64
}

var _ Clock = (*Manual)(nil)

// NewManual creates a manual clock at tick zero. A non-positive frequency
// selects nanosecond ticks.
func NewManual(ticksPerSecond int64) *Manual {
	if ticksPerSecond <= 0 {
		ticksPerSecond = NanosPerSecond
	}

	return &Manual{tps: ticksPerSecond}
}

func (m *Manual) Now() Tick {
	return Tick(m.now.Load())
}

func (m *Manual) TicksPerSecond() int64 {
	return m.tps
}

func (m *Manual) SecondsToTicks(seconds float64) int64 {
	return secondsToTicks(seconds, m.tps)
}

func (m *Manual) TicksToSeconds(ticks int64) float64 {
	return float64(ticks) / float64(m.tps)
}

// Set moves the clock to an absolute tick.
func (m *Manual) Set(t Tick) {
	m.now.Store(int64(t))
}

// Advance moves the clock forward and returns the new reading.
func (m *Manual) Advance(seconds float64) Tick {
	return Tick(m.now.Add(m.SecondsToTicks(seconds)))
}
