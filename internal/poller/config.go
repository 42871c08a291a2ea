package poller

import (
	"fmt"
	"time"
)

// CPUConfig configures the CPU poller.
type CPUConfig struct {
	// Show enables polling and the CPU overlay section.
	Show bool `yaml:"show"`
	// Interval between polls. Defaults to 500ms.
	Interval time.Duration `yaml:"interval"`
	// Simple renders only the load of each core.
	Simple bool `yaml:"simple"`
}

// DiskConfig configures the disk poller.
type DiskConfig struct {
	Show bool `yaml:"show"`
	// Interval between polls. Defaults to 500ms.
	Interval time.Duration `yaml:"interval"`
	// Devices restricts polling to the named devices. Empty polls all,
	// up to MaxDisks.
	Devices []string `yaml:"devices"`
	// MeanWindow is the span of the reported rate means. Defaults to 3s.
	MeanWindow time.Duration `yaml:"mean_window"`
	// RateInterval is the accumulation bucket length. Defaults to 1s.
	RateInterval time.Duration `yaml:"rate_interval"`
}

// PagefileConfig configures the pagefile/swap poller.
type PagefileConfig struct {
	Show bool `yaml:"show"`
	// Interval between polls. Defaults to 2.5s.
	Interval time.Duration `yaml:"interval"`
}

// MemoryConfig configures the process memory poller.
type MemoryConfig struct {
	Show bool `yaml:"show"`
	// Interval between polls. Defaults to 1s.
	Interval time.Duration `yaml:"interval"`
}

// IOConfig configures the process I/O poller.
type IOConfig struct {
	Show bool `yaml:"show"`
	// Interval between polls. Defaults to 250ms.
	Interval time.Duration `yaml:"interval"`
	// RateInterval is the accumulation bucket length. Defaults to 1s.
	RateInterval time.Duration `yaml:"rate_interval"`
}

// Config holds every poller section.
type Config struct {
	CPU      CPUConfig      `yaml:"cpu"`
	Disk     DiskConfig     `yaml:"disk"`
	Pagefile PagefileConfig `yaml:"pagefile"`
	Memory   MemoryConfig   `yaml:"memory"`
	IO       IOConfig       `yaml:"io"`
}

// DefaultConfig enables every category with the stock intervals.
func DefaultConfig() Config {
	return Config{
		CPU: CPUConfig{
			Show:     true,
			Interval: 500 * time.Millisecond,
		},
		Disk: DiskConfig{
			Show:         true,
			Interval:     500 * time.Millisecond,
			MeanWindow:   3 * time.Second,
			RateInterval: time.Second,
		},
		Pagefile: PagefileConfig{
			Show:     true,
			Interval: 2500 * time.Millisecond,
		},
		Memory: MemoryConfig{
			Show:     true,
			Interval: time.Second,
		},
		IO: IOConfig{
			Show:         true,
			Interval:     250 * time.Millisecond,
			RateInterval: time.Second,
		},
	}
}

// Validate checks intervals of enabled categories.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		show bool
		d    time.Duration
	}{
		{"cpu.interval", c.CPU.Show, c.CPU.Interval},
		{"disk.interval", c.Disk.Show, c.Disk.Interval},
		{"disk.mean_window", c.Disk.Show, c.Disk.MeanWindow},
		{"disk.rate_interval", c.Disk.Show, c.Disk.RateInterval},
		{"pagefile.interval", c.Pagefile.Show, c.Pagefile.Interval},
		{"memory.interval", c.Memory.Show, c.Memory.Interval},
		{"io.interval", c.IO.Show, c.IO.Interval},
		{"io.rate_interval", c.IO.Show, c.IO.RateInterval},
	}

	for _, chk := range checks {
		if chk.show && chk.d <= 0 {
			return fmt.Errorf("%s must be > 0", chk.name)
		}
	}

	return nil
}
