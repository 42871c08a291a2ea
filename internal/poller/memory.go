package poller

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ethpandaops/perfhud/internal/source"
	"github.com/ethpandaops/perfhud/internal/stats"
)

// Target yields the PID of the observed process. It is satisfied by
// *source.Session.
type Target interface {
	Target(ctx context.Context) (int32, error)
	TargetGone()
}

// MemorySnapshot is the memory state of the target process plus the
// machine totals.
type MemorySnapshot struct {
	Ready bool
	PID   int32

	WorkingSet   uint64
	Committed    uint64
	AddressSpace uint64

	WorkingSetPeak   uint64
	CommittedPeak    uint64
	AddressSpacePeak uint64

	// WorkingSetMean is the working set averaged over the last second.
	WorkingSetMean float64

	System source.SystemMemory
}

// Memory polls the target's memory footprint.
type Memory struct {
	cfg     MemoryConfig
	opts    Options
	target  Target
	reader  source.ProcessReader
	system  source.SystemMemoryReader
	working *stats.Window

	mu   sync.RWMutex
	snap MemorySnapshot
}

var _ Poller = (*Memory)(nil)

// NewMemory creates a memory poller. A nil system reader skips machine
// totals.
func NewMemory(
	cfg MemoryConfig,
	opts Options,
	target Target,
	reader source.ProcessReader,
	system source.SystemMemoryReader,
) *Memory {
	return &Memory{
		cfg:     cfg,
		opts:    opts,
		target:  target,
		reader:  reader,
		system:  system,
		working: opts.window(),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Interval() time.Duration { return m.cfg.Interval }

func (m *Memory) Poll(ctx context.Context) error {
	pid, err := m.target.Target(ctx)
	if err != nil {
		return err
	}

	pm, err := m.reader.Memory(ctx, pid)
	if err != nil {
		if errors.Is(err, source.ErrProcessGone) {
			m.target.TargetGone()
		}

		return err
	}

	var sys source.SystemMemory

	if m.system != nil {
		if sys, err = m.system.SystemMemory(ctx); err != nil {
			return err
		}
	}

	now := m.opts.Clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.snap
	if prev.PID != pid {
		// Peaks belong to one process.
		prev = MemorySnapshot{}
	}

	m.snap = MemorySnapshot{
		Ready:            true,
		PID:              pid,
		WorkingSet:       pm.WorkingSet,
		Committed:        pm.Committed,
		AddressSpace:     pm.AddressSpace,
		WorkingSetPeak:   max(prev.WorkingSetPeak, pm.WorkingSetPeak, pm.WorkingSet),
		CommittedPeak:    max(prev.CommittedPeak, pm.Committed),
		AddressSpacePeak: max(prev.AddressSpacePeak, pm.AddressSpace),
		System:           sys,
	}

	m.working.Add(float64(pm.WorkingSet), now)

	return nil
}

// Snapshot returns the last successful reading.
func (m *Memory) Snapshot() MemorySnapshot {
	m.mu.RLock()
	snap := m.snap
	m.mu.RUnlock()

	snap.WorkingSetMean = math.NaN()
	if snap.Ready {
		snap.WorkingSetMean = m.working.Mean(1)
	}

	return snap
}
