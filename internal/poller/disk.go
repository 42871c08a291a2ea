package poller

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ethpandaops/perfhud/internal/clock"
	"github.com/ethpandaops/perfhud/internal/counter"
	"github.com/ethpandaops/perfhud/internal/source"
	"github.com/ethpandaops/perfhud/internal/stats"
)

// MaxDisks bounds how many devices the disk poller tracks.
const MaxDisks = 16

// DiskStat is the derived state of one device.
type DiskStat struct {
	Name string
	// Busy, ReadBusy and WriteBusy are smoothed time percentages.
	Busy      float64
	ReadBusy  float64
	WriteBusy float64
	// ReadRate and WriteRate are bytes/s averaged over the mean window.
	// NaN until the first rate bucket completes.
	ReadRate  float64
	WriteRate float64
}

type diskState struct {
	prev      source.DiskCounters
	prevAt    clock.Tick
	stat      DiskStat
	primed    bool
	readRate  *stats.Window
	writeRate *stats.Window
}

// Disk polls block device counters.
type Disk struct {
	cfg    DiskConfig
	opts   Options
	reader source.DiskReader
	acc    *counter.Accumulator

	mu    sync.RWMutex
	disks map[string]*diskState
}

var _ Poller = (*Disk)(nil)

// NewDisk creates a disk poller.
func NewDisk(cfg DiskConfig, opts Options, reader source.DiskReader) *Disk {
	d := &Disk{
		cfg:    cfg,
		opts:   opts,
		reader: reader,
		acc:    counter.New(opts.Clock),
		disks:  make(map[string]*diskState, MaxDisks),
	}

	d.acc.OnDiscontinuity(func(dc counter.Discontinuity) {
		opts.observer().ObserveDiscontinuity(d.Name(), dc.Metric)
	})

	return d
}

func (d *Disk) Name() string { return "disk" }

func (d *Disk) Interval() time.Duration { return d.cfg.Interval }

func (d *Disk) Poll(ctx context.Context) error {
	counters, err := d.reader.DiskCounters(ctx)
	if err != nil {
		return err
	}

	now := d.opts.Clock.Now()
	counters = d.filter(counters)

	snapshot := make(counter.Set, len(counters)*2)
	for _, c := range counters {
		snapshot[c.Name+"/read_bytes"] = c.ReadBytes
		snapshot[c.Name+"/write_bytes"] = c.WriteBytes
	}

	rolled := d.acc.Update(snapshot, now, d.cfg.RateInterval.Seconds())

	d.mu.Lock()
	defer d.mu.Unlock()

	present := make(map[string]struct{}, len(counters))

	for _, c := range counters {
		present[c.Name] = struct{}{}

		st, ok := d.disks[c.Name]
		if !ok {
			st = &diskState{
				readRate:  d.opts.window(),
				writeRate: d.opts.window(),
				stat:      DiskStat{Name: c.Name},
			}
			d.disks[c.Name] = st
		}

		if ok {
			elapsedMs := 1000 * d.opts.Clock.TicksToSeconds(int64(now-st.prevAt))
			if elapsedMs > 0 {
				busy := timePercent(st.prev.IOTimeMs, c.IOTimeMs, elapsedMs)
				read := timePercent(st.prev.ReadTimeMs, c.ReadTimeMs, elapsedMs)
				write := timePercent(st.prev.WriteTimeMs, c.WriteTimeMs, elapsedMs)

				st.stat.Busy = smooth(st.stat.Busy, busy, st.primed)
				st.stat.ReadBusy = smooth(st.stat.ReadBusy, read, st.primed)
				st.stat.WriteBusy = smooth(st.stat.WriteBusy, write, st.primed)
				st.primed = true
			}
		}

		st.prev = c
		st.prevAt = now

		if rolled {
			if r, ok := d.acc.Rate(c.Name + "/read_bytes"); ok {
				st.readRate.Add(r, now)
			}

			if w, ok := d.acc.Rate(c.Name + "/write_bytes"); ok {
				st.writeRate.Add(w, now)
			}
		}
	}

	// Removed devices disappear from the overlay instead of freezing.
	for name := range d.disks {
		if _, ok := present[name]; !ok {
			delete(d.disks, name)
		}
	}

	return nil
}

// Snapshot returns one entry per tracked device, sorted by name.
func (d *Disk) Snapshot() []DiskStat {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seconds := d.cfg.MeanWindow.Seconds()
	out := make([]DiskStat, 0, len(d.disks))

	for _, st := range d.disks {
		s := st.stat
		s.ReadRate = st.readRate.Mean(seconds)
		s.WriteRate = st.writeRate.Mean(seconds)

		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (d *Disk) filter(in []source.DiskCounters) []source.DiskCounters {
	sort.Slice(in, func(i, j int) bool { return in[i].Name < in[j].Name })

	out := make([]source.DiskCounters, 0, min(len(in), MaxDisks))

	for _, c := range in {
		if len(d.cfg.Devices) > 0 && !slices.Contains(d.cfg.Devices, c.Name) {
			continue
		}

		out = append(out, c)

		if len(out) == MaxDisks {
			break
		}
	}

	return out
}

func timePercent(prev, cur uint64, elapsedMs float64) float64 {
	if cur < prev {
		return 0
	}

	v := 100 * float64(cur-prev) / elapsedMs
	if math.IsNaN(v) {
		return 0
	}

	return clampPercent(v)
}
