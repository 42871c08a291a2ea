// Package frame tracks presented frame times and derives frame rate,
// pacing and hitch statistics.
package frame

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/perfhud/internal/clock"
	"github.com/ethpandaops/perfhud/internal/stats"
)

// MaxFrameTimeMs is the longest frame time accepted. Longer readings are
// hook stalls rather than frames.
const MaxFrameTimeMs = 1000.0

// Config configures frame tracking.
type Config struct {
	// Enabled turns on frame tracking and the /frames endpoint.
	Enabled bool `yaml:"enabled"`
	// Window is the trailing span summarised in snapshots. Defaults to 1s.
	Window time.Duration `yaml:"window"`
	// HitchTolerance is the multiple of the mean a frame must exceed to
	// count as a hitch. Defaults to 1.5.
	HitchTolerance float64 `yaml:"hitch_tolerance"`
	// SyntheticRate drives a paced present loop at this many frames per
	// second when > 0. Used when no hooked process reports frames.
	SyntheticRate float64 `yaml:"synthetic_rate"`
}

// DefaultConfig returns frame tracking defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Window:         time.Second,
		HitchTolerance: stats.DefaultHitchTolerance,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Window <= 0 {
		return fmt.Errorf("frames.window must be > 0")
	}

	if c.HitchTolerance <= 1 {
		return fmt.Errorf("frames.hitch_tolerance must be > 1")
	}

	if c.SyntheticRate < 0 {
		return fmt.Errorf("frames.synthetic_rate must be >= 0")
	}

	return nil
}

// Snapshot summarises the frames of one trailing window. Every float is
// NaN while no frame qualifies.
type Snapshot struct {
	API     string
	Frames  int
	FPS     float64
	MeanMs  float64
	MinMs   float64
	MaxMs   float64
	StdDev  float64
	Hitches int
	P99Ms   float64
	// Low1FPS is the frame rate implied by the 99th percentile frame time.
	Low1FPS float64
	// LifetimeP99Ms covers every frame since start.
	LifetimeP99Ms float64
	Received      uint64
	Dropped       uint64
}

// Tracker owns the frame time window.
type Tracker struct {
	clk      clock.Clock
	window   *stats.Window
	detector stats.HitchDetector
	lifetime *stats.Lifetime

	received atomic.Uint64
	dropped  atomic.Uint64

	// recordMu makes the window's single producer out of every ingest
	// path: websocket connections and the paced loop.
	recordMu sync.Mutex

	mu  sync.RWMutex
	api string
}

// NewTracker creates a tracker writing into a window of the given
// capacity and policy.
func NewTracker(
	cfg Config,
	clk clock.Clock,
	capacity int,
	policy stats.SyncPolicy,
) (*Tracker, error) {
	lifetime, err := stats.NewLifetime(stats.DefaultRelativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("creating lifetime sketch: %w", err)
	}

	return &Tracker{
		clk:      clk,
		window:   stats.NewWindow(clk, capacity, policy),
		detector: stats.NewHitchDetector(cfg.HitchTolerance, cfg.Window.Seconds()),
		lifetime: lifetime,
	}, nil
}

// Record ingests one frame time in milliseconds taken at when. It
// returns false when the frame was discarded. Safe for concurrent use.
func (t *Tracker) Record(ms float64, when clock.Tick) bool {
	if math.IsNaN(ms) || ms <= 0 || ms >= MaxFrameTimeMs {
		t.dropped.Add(1)

		return false
	}

	t.recordMu.Lock()
	defer t.recordMu.Unlock()

	if err := t.lifetime.Add(ms); err != nil {
		t.dropped.Add(1)

		return false
	}

	t.window.Add(ms, when)
	t.received.Add(1)

	return true
}

// SetAPI records the graphics API reported by the producer.
func (t *Tracker) SetAPI(api string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.api = api
}

// Window returns the frame time window.
func (t *Tracker) Window() *stats.Window {
	return t.window
}

// Received returns the number of accepted frames.
func (t *Tracker) Received() uint64 {
	return t.received.Load()
}

// Dropped returns the number of discarded frames.
func (t *Tracker) Dropped() uint64 {
	return t.dropped.Load()
}

// Snapshot summarises the trailing window. A non-positive span uses the
// configured window.
func (t *Tracker) Snapshot(windowSeconds float64) Snapshot {
	if windowSeconds <= 0 {
		windowSeconds = t.detector.WindowSeconds
	}

	t.mu.RLock()
	api := t.api
	t.mu.RUnlock()

	sum := stats.Summarize(t.window, windowSeconds, t.detector.Tolerance)

	snap := Snapshot{
		API:           api,
		Frames:        sum.Count,
		FPS:           math.NaN(),
		MeanMs:        sum.Mean,
		MinMs:         math.NaN(),
		MaxMs:         math.NaN(),
		StdDev:        sum.StdDev,
		Hitches:       sum.Hitches,
		P99Ms:         math.NaN(),
		Low1FPS:       math.NaN(),
		LifetimeP99Ms: t.lifetime.Quantile(0.99),
		Received:      t.received.Load(),
		Dropped:       t.dropped.Load(),
	}

	if sum.Empty() {
		return snap
	}

	snap.FPS = 1000 / sum.Mean
	snap.MinMs = sum.Min
	snap.MaxMs = sum.Max

	// Microsecond resolution.
	p := stats.Percentiles(t.window, windowSeconds, 1000, 99)
	snap.P99Ms = p[0]

	if snap.P99Ms > 0 {
		snap.Low1FPS = 1000 / snap.P99Ms
	}

	return snap
}

// Reset discards the lifetime distribution. The window ages out on its
// own.
func (t *Tracker) Reset() {
	t.lifetime.Reset()
	t.received.Store(0)
	t.dropped.Store(0)
}
