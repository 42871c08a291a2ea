package source

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ErrProcessGone is returned when the target process no longer exists.
var ErrProcessGone = errors.New("target process not running")

// Host reads CPU, disk, swap and process counters through gopsutil.
type Host struct{}

var (
	_ CPUReader     = (*Host)(nil)
	_ DiskReader    = (*Host)(nil)
	_ SwapReader    = (*Host)(nil)
	_ ProcessReader = (*Host)(nil)
)

// NewHost returns a gopsutil backed reader.
func NewHost() *Host {
	return &Host{}
}

func (h *Host) CPUTimes(ctx context.Context) (CPUTimes, []CPUTimes, error) {
	total, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUTimes{}, nil, fmt.Errorf("reading total cpu times: %w", err)
	}

	if len(total) == 0 {
		return CPUTimes{}, nil, errors.New("no total cpu times reported")
	}

	cores, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return CPUTimes{}, nil, fmt.Errorf("reading per-cpu times: %w", err)
	}

	out := make([]CPUTimes, len(cores))
	for i, c := range cores {
		out[i] = fromTimesStat(c)
	}

	return fromTimesStat(total[0]), out, nil
}

func fromTimesStat(t cpu.TimesStat) CPUTimes {
	return CPUTimes{
		Name:    t.CPU,
		User:    t.User,
		Nice:    t.Nice,
		System:  t.System,
		Idle:    t.Idle,
		Iowait:  t.Iowait,
		Irq:     t.Irq,
		Softirq: t.Softirq,
		Steal:   t.Steal,
	}
}

func (h *Host) DiskCounters(ctx context.Context) ([]DiskCounters, error) {
	stats, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading disk counters: %w", err)
	}

	out := make([]DiskCounters, 0, len(stats))

	for name, s := range stats {
		out = append(out, DiskCounters{
			Name:        name,
			ReadBytes:   s.ReadBytes,
			WriteBytes:  s.WriteBytes,
			ReadCount:   s.ReadCount,
			WriteCount:  s.WriteCount,
			ReadTimeMs:  s.ReadTime,
			WriteTimeMs: s.WriteTime,
			IOTimeMs:    s.IoTime,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (h *Host) SwapDevices(ctx context.Context) ([]SwapDevice, error) {
	devs, err := mem.SwapDevicesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading swap devices: %w", err)
	}

	out := make([]SwapDevice, 0, len(devs))

	for _, d := range devs {
		if d == nil {
			continue
		}

		out = append(out, SwapDevice{
			Name: d.Name,
			Used: d.UsedBytes,
			Size: d.UsedBytes + d.FreeBytes,
		})
	}

	return out, nil
}

func (h *Host) Memory(ctx context.Context, pid int32) (ProcessMemory, error) {
	p, err := h.process(ctx, pid)
	if err != nil {
		return ProcessMemory{}, err
	}

	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessMemory{}, fmt.Errorf("reading memory of pid %d: %w", pid, err)
	}

	return ProcessMemory{
		WorkingSet:     info.RSS,
		WorkingSetPeak: info.HWM,
		Committed:      info.Data,
		AddressSpace:   info.VMS,
	}, nil
}

func (h *Host) IO(ctx context.Context, pid int32) (ProcessIO, error) {
	p, err := h.process(ctx, pid)
	if err != nil {
		return ProcessIO{}, err
	}

	io, err := p.IOCountersWithContext(ctx)
	if err != nil {
		return ProcessIO{}, fmt.Errorf("reading io counters of pid %d: %w", pid, err)
	}

	return ProcessIO{
		ReadBytes:  io.ReadBytes,
		WriteBytes: io.WriteBytes,
		ReadOps:    io.ReadCount,
		WriteOps:   io.WriteCount,
	}, nil
}

func (h *Host) process(ctx context.Context, pid int32) (*process.Process, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		}

		return nil, fmt.Errorf("opening pid %d: %w", pid, err)
	}

	return p, nil
}
