// Package pacer paces a loop to a target interval using a coarse sleep
// followed by a short spin.
package pacer

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/perfhud/internal/clock"
)

// DefaultSpinThreshold is how close to the deadline the pacer stops
// sleeping and starts spinning.
const DefaultSpinThreshold = 2 * time.Millisecond

// FromRate converts a target rate in Hz into an interval in seconds. A
// non-positive rate yields zero (unpaced).
func FromRate(hz float64) float64 {
	if hz <= 0 {
		return 0
	}

	return 1 / hz
}

// Pacer blocks a single loop until its next interval. Wait must only be
// called from one goroutine; the accessors are safe from any goroutine.
type Pacer struct {
	clk  clock.Clock
	spin time.Duration

	mu        sync.Mutex
	target    float64
	lastStart clock.Tick
	next      clock.Tick
	started   bool

	effective atomic.Uint64
	targetBit atomic.Uint64
	frames    atomic.Uint64
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithSpinThreshold overrides DefaultSpinThreshold.
func WithSpinThreshold(d time.Duration) Option {
	return func(p *Pacer) {
		if d >= 0 {
			p.spin = d
		}
	}
}

// New creates a pacer for the given target interval in seconds.
func New(clk clock.Clock, targetSeconds float64, opts ...Option) *Pacer {
	p := &Pacer{
		clk:  clk,
		spin: DefaultSpinThreshold,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.Configure(targetSeconds)

	return p
}

// Configure sets the target interval and restarts timing from the next
// Wait.
func (p *Pacer) Configure(targetSeconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.target = sanitize(targetSeconds)
	p.targetBit.Store(math.Float64bits(p.target))
	p.started = false
	p.frames.Store(0)
	p.effective.Store(0)
}

// ChangeTarget updates the target interval, keeping the current schedule
// anchor.
func (p *Pacer) ChangeTarget(targetSeconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.target = sanitize(targetSeconds)
	p.targetBit.Store(math.Float64bits(p.target))

	if p.started {
		p.next = p.lastStart + clock.Tick(p.clk.SecondsToTicks(p.target))
	}
}

// Target returns the configured interval in seconds.
func (p *Pacer) Target() float64 {
	return math.Float64frombits(p.targetBit.Load())
}

// EffectiveInterval returns the last measured interval between two
// consecutive Wait returns, in seconds.
func (p *Pacer) EffectiveInterval() float64 {
	return math.Float64frombits(p.effective.Load())
}

// Frames returns the number of completed intervals since Configure.
func (p *Pacer) Frames() uint64 {
	return p.frames.Load()
}

// Wait blocks until the next interval boundary. The first call only
// anchors the schedule. A loop that falls more than a full interval behind
// is re-anchored to now rather than allowed to burst.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()

	now := p.clk.Now()

	if !p.started {
		p.started = true
		p.lastStart = now
		p.next = now + clock.Tick(p.clk.SecondsToTicks(p.target))
		p.mu.Unlock()

		return ctx.Err()
	}

	deadline := p.next
	p.mu.Unlock()

	if err := p.sleepUntil(ctx, deadline); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now = p.clk.Now()
	step := clock.Tick(p.clk.SecondsToTicks(p.target))

	p.effective.Store(math.Float64bits(p.clk.TicksToSeconds(int64(now - p.lastStart))))
	p.frames.Add(1)

	p.lastStart = now
	p.next += step

	if now-p.next > step {
		p.next = now + step
	}

	return nil
}

func (p *Pacer) sleepUntil(ctx context.Context, deadline clock.Tick) error {
	tps := p.clk.TicksPerSecond()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		remaining := deadline - p.clk.Now()
		if remaining <= 0 {
			return nil
		}

		d := time.Duration(float64(remaining) / float64(tps) * float64(time.Second))
		if d > p.spin {
			timer := time.NewTimer(d - p.spin)

			select {
			case <-ctx.Done():
				timer.Stop()

				return ctx.Err()
			case <-timer.C:
			}

			continue
		}

		runtime.Gosched()
	}
}

func sanitize(seconds float64) float64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0
	}

	return seconds
}
