package overlay

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Section names, in render order.
const (
	SectionTitle    = "title"
	SectionFrames   = "frames"
	SectionCPU      = "cpu"
	SectionIO       = "io"
	SectionMemory   = "memory"
	SectionDisk     = "disk"
	SectionPagefile = "pagefile"
)

// noData replaces values that cannot be computed yet.
const noData = "--"

const mib = 1024 * 1024

// FormatOptions tune the rendered layout.
type FormatOptions struct {
	// Title heads the overlay. Empty hides the title line.
	Title string
	// TimeFormat is a Go time layout for the clock on the title line.
	TimeFormat string
	// CPUSimple renders only the load of each core.
	CPUSimple bool
	// FrameWindow is the span summarised on the frame line.
	FrameWindow time.Duration
}

// Section is a named block of overlay lines.
type Section struct {
	Name  string
	Lines []string
}

// Formatter renders a Context into overlay text.
type Formatter struct {
	opts FormatOptions
	now  func() time.Time
}

// NewFormatter creates a formatter.
func NewFormatter(opts FormatOptions) *Formatter {
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.TimeOnly
	}

	return &Formatter{opts: opts, now: time.Now}
}

// Render returns the overlay text. Sections are separated by one blank
// line.
func (f *Formatter) Render(c *Context) string {
	sections := f.Sections(c)

	var b strings.Builder

	for i, s := range sections {
		if i > 0 {
			b.WriteByte('\n')
		}

		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// Sections renders each visible section.
func (f *Formatter) Sections(c *Context) []Section {
	out := make([]Section, 0, 7)

	add := func(name string, lines []string) {
		if len(lines) > 0 {
			out = append(out, Section{Name: name, Lines: lines})
		}
	}

	if f.opts.Title != "" {
		add(SectionTitle, []string{
			fmt.Sprintf("%s   %s", f.opts.Title, f.now().Format(f.opts.TimeFormat)),
		})
	}

	if c == nil {
		return out
	}

	if c.Frames != nil {
		add(SectionFrames, f.frameLines(c.Frames))
	}

	if c.CPU != nil {
		add(SectionCPU, f.cpuLines(c.CPU))
	}

	if c.IO != nil {
		add(SectionIO, ioLines(c.IO))
	}

	if c.Memory != nil {
		add(SectionMemory, memoryLines(c.Memory))
	}

	if c.Disk != nil {
		add(SectionDisk, diskLines(c.Disk))
	}

	if c.Pagefile != nil {
		add(SectionPagefile, pagefileLines(c.Pagefile))
	}

	return out
}

func (f *Formatter) frameLines(src FrameSource) []string {
	snap := src.Snapshot(f.opts.FrameWindow.Seconds())

	api := snap.API
	if api == "" {
		api = "UNKNOWN"
	}

	return []string{
		fmt.Sprintf("  %-6s :  %s FPS, %s ms  (1%% low: %s FPS, hitches: %d)",
			api,
			fixed(snap.FPS, 6, 1),
			fixed(snap.MeanMs, 7, 1),
			fixed(snap.Low1FPS, 5, 1),
			snap.Hitches,
		),
	}
}

func (f *Formatter) cpuLines(src CPUSource) []string {
	snap := src.Snapshot()

	full := func(label string, l cpuLoad) string {
		return fmt.Sprintf("  %-7s: %s%%  -  (Kernel: %s%%   User: %s%%   Interrupt: %s%%)",
			label, l.load, l.kernel, l.user, l.interrupt)
	}

	lines := make([]string, 0, len(snap.Cores)+1)
	lines = append(lines, full("Total", newCPULoad(snap.Ready, snap.Total.Load, snap.Total.Kernel,
		snap.Total.User, snap.Total.Interrupt)))

	for i, c := range snap.Cores {
		l := newCPULoad(snap.Ready, c.Load, c.Kernel, c.User, c.Interrupt)
		label := fmt.Sprintf("CPU%d", i)

		if f.opts.CPUSimple {
			lines = append(lines, fmt.Sprintf("  %-7s: %s%%", label, l.load))

			continue
		}

		lines = append(lines, full(label, l))
	}

	return lines
}

type cpuLoad struct {
	load, kernel, user, interrupt string
}

func newCPULoad(ready bool, load, kernel, user, interrupt float64) cpuLoad {
	if !ready {
		nan := math.NaN()
		load, kernel, user, interrupt = nan, nan, nan, nan
	}

	return cpuLoad{
		load:      fixed(load, 3, 0),
		kernel:    fixed(kernel, 3, 0),
		user:      fixed(user, 3, 0),
		interrupt: fixed(interrupt, 3, 0),
	}
}

func ioLines(src IOSource) []string {
	snap := src.Snapshot()

	line := func(label string, r ioRate) string {
		return fmt.Sprintf("  %-7s:%s MiB/s - (%s IOP/s)", label, r.mib, r.ops)
	}

	return []string{
		line("Read", newIORate(snap.Ready, snap.Read.BytesPerSec, snap.Read.OpsPerSec)),
		line("Write", newIORate(snap.Ready, snap.Write.BytesPerSec, snap.Write.OpsPerSec)),
		line("Other", newIORate(snap.Ready, snap.Other.BytesPerSec, snap.Other.OpsPerSec)),
	}
}

type ioRate struct {
	mib, ops string
}

func newIORate(ready bool, bytes, ops float64) ioRate {
	if !ready {
		bytes, ops = math.NaN(), math.NaN()
	}

	return ioRate{mib: fixed(bytes/mib, 6, 2), ops: fixed(ops, 6, 1)}
}

func memoryLines(src MemorySource) []string {
	snap := src.Snapshot()

	size := func(v uint64) string {
		if !snap.Ready {
			return noData
		}

		return humanize.IBytes(v)
	}

	lines := []string{
		fmt.Sprintf("  Working Set: %s,  Committed: %s,  Address Space: %s",
			size(snap.WorkingSet), size(snap.Committed), size(snap.AddressSpace)),
		fmt.Sprintf("        *Peak: %s,      *Peak: %s,          *Peak: %s",
			size(snap.WorkingSetPeak), size(snap.CommittedPeak), size(snap.AddressSpacePeak)),
	}

	if snap.System.Total > 0 {
		lines = append(lines, fmt.Sprintf("  System     : %s used / %s total (%s free)",
			humanize.IBytes(snap.System.Used),
			humanize.IBytes(snap.System.Total),
			humanize.IBytes(snap.System.Free),
		))
	}

	return lines
}

func diskLines(src DiskSource) []string {
	disks := src.Snapshot()
	lines := make([]string, 0, len(disks))

	for _, d := range disks {
		lines = append(lines, fmt.Sprintf("  Disk %-16s %s%%  -  (Read %s%%: %s/s, Write %s%%: %s/s)",
			d.Name,
			fixed(d.Busy, 3, 0),
			fixed(d.ReadBusy, 3, 0),
			rate(d.ReadRate),
			fixed(d.WriteBusy, 3, 0),
			rate(d.WriteRate),
		))
	}

	return lines
}

func pagefileLines(src PagefileSource) []string {
	files := src.Snapshot()
	lines := make([]string, 0, len(files))

	for _, p := range files {
		lines = append(lines, fmt.Sprintf("  Pagefile %20s  %s / %s  (Peak: %s)",
			p.Name,
			humanize.IBytes(p.Used),
			humanize.IBytes(p.Size),
			humanize.IBytes(p.Peak),
		))
	}

	return lines
}

// fixed formats v right-aligned in width, or noData when v is not finite.
func fixed(v float64, width, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%*s", width, noData)
	}

	return fmt.Sprintf("%*.*f", width, precision, v)
}

func rate(bytesPerSec float64) string {
	if math.IsNaN(bytesPerSec) || math.IsInf(bytesPerSec, 0) || bytesPerSec < 0 {
		return noData
	}

	return humanize.IBytes(uint64(bytesPerSec))
}
