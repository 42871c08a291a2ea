package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethpandaops/perfhud/internal/counter"
	"github.com/ethpandaops/perfhud/internal/source"
)

// Metric names fed to the I/O accumulator.
const (
	IOReadBytes  = "read_bytes"
	IOWriteBytes = "write_bytes"
	IOOtherBytes = "other_bytes"
	IOReadOps    = "read_ops"
	IOWriteOps   = "write_ops"
	IOOtherOps   = "other_ops"
)

// IORate is a throughput in bytes/s and operations/s.
type IORate struct {
	BytesPerSec float64
	OpsPerSec   float64
}

// IOSnapshot is the smoothed I/O throughput of the target process.
type IOSnapshot struct {
	Ready bool
	PID   int32
	Read  IORate
	Write IORate
	Other IORate
}

// IO polls the target's cumulative I/O counters.
type IO struct {
	cfg    IOConfig
	opts   Options
	target Target
	reader source.ProcessReader
	acc    *counter.Accumulator

	mu  sync.Mutex
	pid int32
}

var _ Poller = (*IO)(nil)

// NewIO creates an I/O poller.
func NewIO(cfg IOConfig, opts Options, target Target, reader source.ProcessReader) *IO {
	p := &IO{
		cfg:    cfg,
		opts:   opts,
		target: target,
		reader: reader,
		acc:    counter.New(opts.Clock),
	}

	p.acc.OnDiscontinuity(func(d counter.Discontinuity) {
		opts.observer().ObserveDiscontinuity(p.Name(), d.Metric)
	})

	return p
}

func (p *IO) Name() string { return "io" }

func (p *IO) Interval() time.Duration { return p.cfg.Interval }

// Accumulator exposes the underlying rate accumulator.
func (p *IO) Accumulator() *counter.Accumulator { return p.acc }

func (p *IO) Poll(ctx context.Context) error {
	pid, err := p.target.Target(ctx)
	if err != nil {
		return err
	}

	pio, err := p.reader.IO(ctx, pid)
	if err != nil {
		if errors.Is(err, source.ErrProcessGone) {
			p.target.TargetGone()
		}

		return err
	}

	now := p.opts.Clock.Now()

	p.mu.Lock()
	if p.pid != pid {
		// Counters of a new process are unrelated to the previous one.
		p.acc.Reset()
		p.pid = pid
	}
	p.mu.Unlock()

	p.acc.Update(counter.Set{
		IOReadBytes:  pio.ReadBytes,
		IOWriteBytes: pio.WriteBytes,
		IOOtherBytes: pio.OtherBytes,
		IOReadOps:    pio.ReadOps,
		IOWriteOps:   pio.WriteOps,
		IOOtherOps:   pio.OtherOps,
	}, now, p.cfg.RateInterval.Seconds())

	return nil
}

// Snapshot returns the smoothed rates. Ready is false until the first
// bucket completes.
func (p *IO) Snapshot() IOSnapshot {
	p.mu.Lock()
	pid := p.pid
	p.mu.Unlock()

	rates := p.acc.Rates()
	if rates == nil {
		return IOSnapshot{PID: pid}
	}

	return IOSnapshot{
		Ready: true,
		PID:   pid,
		Read:  IORate{BytesPerSec: rates[IOReadBytes], OpsPerSec: rates[IOReadOps]},
		Write: IORate{BytesPerSec: rates[IOWriteBytes], OpsPerSec: rates[IOWriteOps]},
		Other: IORate{BytesPerSec: rates[IOOtherBytes], OpsPerSec: rates[IOOtherOps]},
	}
}
