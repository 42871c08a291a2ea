// Package overlay renders the collected telemetry into on-screen display
// text and hands it to publishers.
package overlay

import (
	"github.com/ethpandaops/perfhud/internal/frame"
	"github.com/ethpandaops/perfhud/internal/poller"
)

// FrameSource provides frame statistics.
type FrameSource interface {
	Snapshot(windowSeconds float64) frame.Snapshot
}

// CPUSource provides CPU utilisation.
type CPUSource interface {
	Snapshot() poller.CPUSnapshot
}

// IOSource provides process I/O throughput.
type IOSource interface {
	Snapshot() poller.IOSnapshot
}

// MemorySource provides process memory usage.
type MemorySource interface {
	Snapshot() poller.MemorySnapshot
}

// DiskSource provides per-device disk statistics.
type DiskSource interface {
	Snapshot() []poller.DiskStat
}

// PagefileSource provides pagefile usage.
type PagefileSource interface {
	Snapshot() []poller.PagefileStat
}

// Context holds the sources a Formatter reads. A nil source hides its
// section.
type Context struct {
	Frames   FrameSource
	CPU      CPUSource
	IO       IOSource
	Memory   MemorySource
	Disk     DiskSource
	Pagefile PagefileSource
}
