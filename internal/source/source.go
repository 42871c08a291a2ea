// Package source reads raw OS counter snapshots for the pollers.
package source

import "context"

// CPUTimes are cumulative CPU times in seconds for one logical CPU or the
// whole machine.
type CPUTimes struct {
	Name    string
	User    float64
	Nice    float64
	System  float64
	Idle    float64
	Iowait  float64
	Irq     float64
	Softirq float64
	Steal   float64
}

// Total is the sum of all accounted time.
func (c CPUTimes) Total() float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.Irq + c.Softirq + c.Steal
}

// Busy is the total minus idle and iowait.
func (c CPUTimes) Busy() float64 {
	return c.Total() - c.Idle - c.Iowait
}

// CPUReader reads cumulative CPU times.
type CPUReader interface {
	// CPUTimes returns the machine total and one entry per logical CPU.
	CPUTimes(ctx context.Context) (CPUTimes, []CPUTimes, error)
}

// DiskCounters are cumulative counters for one block device.
type DiskCounters struct {
	Name        string
	ReadBytes   uint64
	WriteBytes  uint64
	ReadCount   uint64
	WriteCount  uint64
	ReadTimeMs  uint64
	WriteTimeMs uint64
	IOTimeMs    uint64
}

// DiskReader reads per-device I/O counters.
type DiskReader interface {
	DiskCounters(ctx context.Context) ([]DiskCounters, error)
}

// SwapDevice describes one pagefile or swap device.
type SwapDevice struct {
	Name string
	Used uint64
	Size uint64
}

// SwapReader reads pagefile/swap usage.
type SwapReader interface {
	SwapDevices(ctx context.Context) ([]SwapDevice, error)
}

// ProcessMemory is the memory footprint of the target process in bytes.
type ProcessMemory struct {
	WorkingSet     uint64
	WorkingSetPeak uint64
	Committed      uint64
	AddressSpace   uint64
}

// ProcessIO are cumulative I/O counters of the target process. Other
// covers transfers that are neither reads nor writes where the platform
// reports them.
type ProcessIO struct {
	ReadBytes  uint64
	WriteBytes uint64
	OtherBytes uint64
	ReadOps    uint64
	WriteOps   uint64
	OtherOps   uint64
}

// ProcessReader reads per-process counters.
type ProcessReader interface {
	Memory(ctx context.Context, pid int32) (ProcessMemory, error)
	IO(ctx context.Context, pid int32) (ProcessIO, error)
}

// SystemMemory is machine-wide physical memory in bytes.
type SystemMemory struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// SystemMemoryReader reads machine-wide memory.
type SystemMemoryReader interface {
	SystemMemory(ctx context.Context) (SystemMemory, error)
}
