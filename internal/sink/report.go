package sink

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Row categories.
const (
	CategoryFrame    = "frame"
	CategoryCPU      = "cpu"
	CategoryIO       = "io"
	CategoryMemory   = "memory"
	CategoryDisk     = "disk"
	CategoryPagefile = "pagefile"
)

// Row is one named value in a report.
type Row struct {
	Category string
	Name     string
	// Label distinguishes instances of the same metric, such as a CPU
	// core or a disk. Empty for singletons.
	Label string
	Value float64
}

// Report is the snapshot of every collected value at a window boundary.
type Report struct {
	ID          uuid.UUID
	Window      uint64
	WindowStart time.Time
	Host        string
	Instance    string
	PID         int32
	Rows        []Row
}

// NewReport creates an empty report for the given window.
func NewReport(window uint64, start time.Time, host, instance string, pid int32) *Report {
	return &Report{
		ID:          uuid.New(),
		Window:      window,
		WindowStart: start,
		Host:        host,
		Instance:    instance,
		PID:         pid,
		Rows:        make([]Row, 0, 64),
	}
}

// Add appends a row. Non-finite values are not representable downstream
// and are skipped. It reports whether the row was added.
func (r *Report) Add(category, name, label string, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	r.Rows = append(r.Rows, Row{
		Category: category,
		Name:     name,
		Label:    label,
		Value:    value,
	})

	return true
}

// Value returns the first row matching category, name and label.
func (r *Report) Value(category, name, label string) (float64, bool) {
	for _, row := range r.Rows {
		if row.Category == category && row.Name == name && row.Label == label {
			return row.Value, true
		}
	}

	return 0, false
}
