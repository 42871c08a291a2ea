package agent

import (
	"time"

	"github.com/ethpandaops/perfhud/internal/export"
	"github.com/ethpandaops/perfhud/internal/overlay"
	"github.com/ethpandaops/perfhud/internal/sink"
)

// reportMetrics lists every category/name pair collectRows can emit.
var reportMetrics = map[string][]string{
	sink.CategoryFrame: {
		"frames", "fps", "frame_time_ms", "min_ms", "max_ms", "stddev_ms",
		"p99_ms", "low1_fps", "lifetime_p99_ms", "hitches",
	},
	sink.CategoryCPU: {
		"load", "kernel", "user", "interrupt", "mean_load",
	},
	sink.CategoryIO: {
		"bytes_per_sec", "ops_per_sec",
	},
	sink.CategoryMemory: {
		"working_set", "committed", "address_space",
		"working_set_peak", "committed_peak", "address_space_peak",
		"working_set_mean", "system_total", "system_used", "system_free",
	},
	sink.CategoryDisk: {
		"busy_percent", "read_busy_percent", "write_busy_percent",
		"read_bytes_per_sec", "write_bytes_per_sec",
	},
	sink.CategoryPagefile: {
		"used_bytes", "size_bytes", "peak_bytes",
	},
}

// collectRows appends the current value of every source in c to r.
// Sources that are nil or not yet ready add nothing.
func collectRows(r *sink.Report, c *overlay.Context, frameWindow time.Duration) {
	if c.Frames != nil {
		s := c.Frames.Snapshot(frameWindow.Seconds())
		if s.Frames > 0 {
			r.Add(sink.CategoryFrame, "frames", "", float64(s.Frames))
			r.Add(sink.CategoryFrame, "fps", "", s.FPS)
			r.Add(sink.CategoryFrame, "frame_time_ms", "", s.MeanMs)
			r.Add(sink.CategoryFrame, "min_ms", "", s.MinMs)
			r.Add(sink.CategoryFrame, "max_ms", "", s.MaxMs)
			r.Add(sink.CategoryFrame, "stddev_ms", "", s.StdDev)
			r.Add(sink.CategoryFrame, "p99_ms", "", s.P99Ms)
			r.Add(sink.CategoryFrame, "low1_fps", "", s.Low1FPS)
			r.Add(sink.CategoryFrame, "lifetime_p99_ms", "", s.LifetimeP99Ms)
			r.Add(sink.CategoryFrame, "hitches", "", float64(s.Hitches))
		}
	}

	if c.CPU != nil {
		s := c.CPU.Snapshot()
		if s.Ready {
			r.Add(sink.CategoryCPU, "load", "total", s.Total.Load)
			r.Add(sink.CategoryCPU, "kernel", "total", s.Total.Kernel)
			r.Add(sink.CategoryCPU, "user", "total", s.Total.User)
			r.Add(sink.CategoryCPU, "interrupt", "total", s.Total.Interrupt)
			r.Add(sink.CategoryCPU, "mean_load", "total", s.MeanLoad)

			for _, core := range s.Cores {
				r.Add(sink.CategoryCPU, "load", core.Name, core.Load)
			}
		}
	}

	if c.IO != nil {
		s := c.IO.Snapshot()
		if s.Ready {
			r.Add(sink.CategoryIO, "bytes_per_sec", "read", s.Read.BytesPerSec)
			r.Add(sink.CategoryIO, "bytes_per_sec", "write", s.Write.BytesPerSec)
			r.Add(sink.CategoryIO, "bytes_per_sec", "other", s.Other.BytesPerSec)
			r.Add(sink.CategoryIO, "ops_per_sec", "read", s.Read.OpsPerSec)
			r.Add(sink.CategoryIO, "ops_per_sec", "write", s.Write.OpsPerSec)
			r.Add(sink.CategoryIO, "ops_per_sec", "other", s.Other.OpsPerSec)
		}
	}

	if c.Memory != nil {
		s := c.Memory.Snapshot()
		if s.Ready {
			r.Add(sink.CategoryMemory, "working_set", "", float64(s.WorkingSet))
			r.Add(sink.CategoryMemory, "committed", "", float64(s.Committed))
			r.Add(sink.CategoryMemory, "address_space", "", float64(s.AddressSpace))
			r.Add(sink.CategoryMemory, "working_set_peak", "", float64(s.WorkingSetPeak))
			r.Add(sink.CategoryMemory, "committed_peak", "", float64(s.CommittedPeak))
			r.Add(sink.CategoryMemory, "address_space_peak", "", float64(s.AddressSpacePeak))
			r.Add(sink.CategoryMemory, "working_set_mean", "", s.WorkingSetMean)
		}

		if s.System.Total > 0 {
			r.Add(sink.CategoryMemory, "system_total", "", float64(s.System.Total))
			r.Add(sink.CategoryMemory, "system_used", "", float64(s.System.Used))
			r.Add(sink.CategoryMemory, "system_free", "", float64(s.System.Free))
		}
	}

	if c.Disk != nil {
		for _, d := range c.Disk.Snapshot() {
			r.Add(sink.CategoryDisk, "busy_percent", d.Name, d.Busy)
			r.Add(sink.CategoryDisk, "read_busy_percent", d.Name, d.ReadBusy)
			r.Add(sink.CategoryDisk, "write_busy_percent", d.Name, d.WriteBusy)
			r.Add(sink.CategoryDisk, "read_bytes_per_sec", d.Name, d.ReadRate)
			r.Add(sink.CategoryDisk, "write_bytes_per_sec", d.Name, d.WriteRate)
		}
	}

	if c.Pagefile != nil {
		for _, p := range c.Pagefile.Snapshot() {
			r.Add(sink.CategoryPagefile, "used_bytes", p.Name, float64(p.Used))
			r.Add(sink.CategoryPagefile, "size_bytes", p.Name, float64(p.Size))
			r.Add(sink.CategoryPagefile, "peak_bytes", p.Name, float64(p.Peak))
		}
	}
}

// targetPID returns the PID the process pollers last observed.
func targetPID(c *overlay.Context) int32 {
	if c.Memory != nil {
		if s := c.Memory.Snapshot(); s.Ready {
			return s.PID
		}
	}

	if c.IO != nil {
		if s := c.IO.Snapshot(); s.Ready {
			return s.PID
		}
	}

	return 0
}

// updateHealth copies report rows into the Prometheus gauges.
func updateHealth(h *export.HealthMetrics, r *sink.Report) {
	h.TargetPID.Set(float64(r.PID))

	for _, row := range r.Rows {
		switch row.Category {
		case sink.CategoryFrame:
			switch row.Name {
			case "fps":
				h.FrameFPS.Set(row.Value)
			case "frame_time_ms":
				h.FrameTimeMs.Set(row.Value)
			case "p99_ms":
				h.FrameP99Ms.Set(row.Value)
			case "low1_fps":
				h.FrameLow1FPS.Set(row.Value)
			case "hitches":
				h.FrameHitches.Set(row.Value)
			}
		case sink.CategoryCPU:
			if row.Name == "load" {
				h.CPULoad.WithLabelValues(row.Label).Set(row.Value)
			}
		case sink.CategoryIO:
			switch row.Name {
			case "bytes_per_sec":
				h.IOBytesPerSec.WithLabelValues(row.Label).Set(row.Value)
			case "ops_per_sec":
				h.IOOpsPerSec.WithLabelValues(row.Label).Set(row.Value)
			}
		case sink.CategoryMemory:
			switch row.Name {
			case "working_set", "committed", "address_space",
				"system_total", "system_used":
				h.MemoryBytes.WithLabelValues(row.Name).Set(row.Value)
			}
		case sink.CategoryDisk:
			switch row.Name {
			case "busy_percent":
				h.DiskBusyPercent.WithLabelValues(row.Label).Set(row.Value)
			case "read_bytes_per_sec":
				h.DiskBytesPerSec.WithLabelValues(row.Label, "read").Set(row.Value)
			case "write_bytes_per_sec":
				h.DiskBytesPerSec.WithLabelValues(row.Label, "write").Set(row.Value)
			}
		case sink.CategoryPagefile:
			switch row.Name {
			case "used_bytes":
				h.PagefileBytes.WithLabelValues(row.Label, "used").Set(row.Value)
			case "size_bytes":
				h.PagefileBytes.WithLabelValues(row.Label, "size").Set(row.Value)
			case "peak_bytes":
				h.PagefileBytes.WithLabelValues(row.Label, "peak").Set(row.Value)
			}
		}
	}
}

// gaugeNames returns the OTLP gauge name of every report metric.
func gaugeNames() []string {
	names := make([]string, 0, 40)

	for category, metrics := range reportMetrics {
		for _, name := range metrics {
			names = append(names, category+"."+name)
		}
	}

	return names
}

// toGauges converts report rows into OTLP gauge observations.
func toGauges(r *sink.Report) []export.Gauge {
	gauges := make([]export.Gauge, 0, len(r.Rows))

	for _, row := range r.Rows {
		g := export.Gauge{
			Name:  row.Category + "." + row.Name,
			Value: row.Value,
		}

		if row.Label != "" {
			g.Attrs = map[string]string{row.Category: row.Label}
		}

		gauges = append(gauges, g)
	}

	return gauges
}
