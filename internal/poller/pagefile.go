package poller

import (
	"context"
	"sync"
	"time"

	"github.com/ethpandaops/perfhud/internal/source"
)

// PagefileStat is the usage of one pagefile or swap device in bytes.
type PagefileStat struct {
	Name string
	Used uint64
	Size uint64
	Peak uint64
}

// Pagefile polls swap device usage and tracks the peak per device.
type Pagefile struct {
	cfg    PagefileConfig
	opts   Options
	reader source.SwapReader

	mu      sync.RWMutex
	devices []PagefileStat
	peaks   map[string]uint64
}

var _ Poller = (*Pagefile)(nil)

// NewPagefile creates a pagefile poller.
func NewPagefile(cfg PagefileConfig, opts Options, reader source.SwapReader) *Pagefile {
	return &Pagefile{
		cfg:    cfg,
		opts:   opts,
		reader: reader,
		peaks:  make(map[string]uint64, 4),
	}
}

func (p *Pagefile) Name() string { return "pagefile" }

func (p *Pagefile) Interval() time.Duration { return p.cfg.Interval }

func (p *Pagefile) Poll(ctx context.Context) error {
	devs, err := p.reader.SwapDevices(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PagefileStat, 0, len(devs))

	for _, d := range devs {
		peak := max(p.peaks[d.Name], d.Used)
		p.peaks[d.Name] = peak

		out = append(out, PagefileStat{
			Name: d.Name,
			Used: d.Used,
			Size: d.Size,
			Peak: peak,
		})
	}

	p.devices = out

	return nil
}

// Snapshot returns the devices seen on the last successful poll.
func (p *Pagefile) Snapshot() []PagefileStat {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PagefileStat, len(p.devices))
	copy(out, p.devices)

	return out
}
