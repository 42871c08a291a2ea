package poller

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ethpandaops/perfhud/internal/source"
	"github.com/ethpandaops/perfhud/internal/stats"
)

// CPULoad is the smoothed utilisation of one CPU in percent.
type CPULoad struct {
	Name      string
	Load      float64
	Kernel    float64
	User      float64
	Interrupt float64
}

// CPUSnapshot is a copy of the CPU poller state.
type CPUSnapshot struct {
	Ready bool
	Total CPULoad
	Cores []CPULoad
	// MeanLoad is the total load averaged over the last second.
	MeanLoad float64
}

// CPU polls cumulative CPU times and derives per-core utilisation.
type CPU struct {
	cfg    CPUConfig
	opts   Options
	reader source.CPUReader
	window *stats.Window

	mu        sync.RWMutex
	primed    bool
	prevTotal source.CPUTimes
	prevCores []source.CPUTimes
	total     CPULoad
	cores     []CPULoad
	loadReady bool
}

var _ Poller = (*CPU)(nil)

// NewCPU creates a CPU poller.
func NewCPU(cfg CPUConfig, opts Options, reader source.CPUReader) *CPU {
	return &CPU{
		cfg:    cfg,
		opts:   opts,
		reader: reader,
		window: opts.window(),
	}
}

func (c *CPU) Name() string { return "cpu" }

func (c *CPU) Interval() time.Duration { return c.cfg.Interval }

// Window returns the total load window.
func (c *CPU) Window() *stats.Window { return c.window }

func (c *CPU) Poll(ctx context.Context) error {
	total, cores, err := c.reader.CPUTimes(ctx)
	if err != nil {
		return err
	}

	now := c.opts.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.primed || len(cores) != len(c.prevCores) {
		c.prevTotal = total
		c.prevCores = cores
		c.cores = make([]CPULoad, len(cores))
		c.primed = true
		c.loadReady = false

		return nil
	}

	c.total = blendLoad(c.total, loadBetween(c.prevTotal, total), c.loadReady)
	for i := range cores {
		c.cores[i] = blendLoad(c.cores[i], loadBetween(c.prevCores[i], cores[i]), c.loadReady)
	}

	c.prevTotal = total
	c.prevCores = cores
	c.loadReady = true

	c.window.Add(c.total.Load, now)

	return nil
}

// Snapshot returns a copy of the current loads.
func (c *CPU) Snapshot() CPUSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cores := make([]CPULoad, len(c.cores))
	copy(cores, c.cores)

	snap := CPUSnapshot{
		Ready:    c.loadReady,
		Total:    c.total,
		Cores:    cores,
		MeanLoad: math.NaN(),
	}

	if c.loadReady {
		snap.MeanLoad = c.window.Mean(1)
	}

	return snap
}

func loadBetween(prev, cur source.CPUTimes) CPULoad {
	dt := cur.Total() - prev.Total()
	if dt <= 0 {
		return CPULoad{Name: cur.Name}
	}

	pct := func(delta float64) float64 {
		return clampPercent(100 * delta / dt)
	}

	return CPULoad{
		Name:      cur.Name,
		Load:      pct(cur.Busy() - prev.Busy()),
		Kernel:    pct(cur.System - prev.System),
		User:      pct((cur.User + cur.Nice) - (prev.User + prev.Nice)),
		Interrupt: pct((cur.Irq + cur.Softirq) - (prev.Irq + prev.Softirq)),
	}
}

func blendLoad(prev, cur CPULoad, primed bool) CPULoad {
	return CPULoad{
		Name:      cur.Name,
		Load:      smooth(prev.Load, cur.Load, primed),
		Kernel:    smooth(prev.Kernel, cur.Kernel, primed),
		User:      smooth(prev.User, cur.User, primed),
		Interrupt: smooth(prev.Interrupt, cur.Interrupt, primed),
	}
}
