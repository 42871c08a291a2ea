package agent

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/perfhud/internal/export"
	httpexport "github.com/ethpandaops/perfhud/internal/export/http"
	"github.com/ethpandaops/perfhud/internal/frame"
	"github.com/ethpandaops/perfhud/internal/overlay"
	"github.com/ethpandaops/perfhud/internal/pid"
	"github.com/ethpandaops/perfhud/internal/poller"
	"github.com/ethpandaops/perfhud/internal/sink"
	"github.com/ethpandaops/perfhud/internal/stats"
)

// Config is the top-level configuration for the perfhud agent.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Health configures the Prometheus health metrics server.
	Health export.HealthConfig `yaml:"health"`

	// Target selects the observed process.
	Target pid.Config `yaml:"target"`

	// Stats configures the sample windows.
	Stats StatsConfig `yaml:"stats"`

	// Frames configures frame tracking.
	Frames frame.Config `yaml:"frames"`

	// Pollers holds the cpu, disk, pagefile, memory and io sections.
	Pollers poller.Config `yaml:",inline"`

	// OSD configures overlay rendering and publishing.
	OSD overlay.Config `yaml:"osd"`

	// Report configures per-window reports handed to sinks.
	Report ReportConfig `yaml:"report"`

	// Sinks configures report sinks.
	Sinks sink.Config `yaml:"sinks"`

	// OTLP configures optional OTLP metric export.
	OTLP OTLPConfig `yaml:"otlp"`
}

// StatsConfig configures every sample window.
type StatsConfig struct {
	// Capacity is the number of samples each window retains.
	// Defaults to 120.
	Capacity int `yaml:"capacity"`

	// SyncPolicy is "locked" or "relaxed". Defaults to locked.
	SyncPolicy string `yaml:"sync_policy"`
}

// ReportConfig configures report emission.
type ReportConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval is the report window length. Defaults to 1s.
	Interval time.Duration `yaml:"interval"`

	// Instance names this agent in reports. Defaults to the hostname.
	Instance string `yaml:"instance"`
}

// OTLPConfig enables the OTLP exporter.
type OTLPConfig struct {
	Enabled bool `yaml:"enabled"`

	export.OTLPConfig `yaml:",inline"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Health: export.HealthConfig{
			Addr: ":9090",
		},
		Stats: StatsConfig{
			Capacity:   stats.DefaultCapacity,
			SyncPolicy: stats.Locked.String(),
		},
		Frames:  frame.DefaultConfig(),
		Pollers: poller.DefaultConfig(),
		OSD:     overlay.DefaultConfig(),
		Report: ReportConfig{
			Enabled:  true,
			Interval: time.Second,
		},
		Sinks: sink.Config{
			HTTP: httpexport.DefaultConfig(),
		},
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if c.Target.PID < 0 {
		return fmt.Errorf("target.pid must be >= 0")
	}

	if c.Stats.Capacity <= 0 {
		return fmt.Errorf("stats.capacity must be > 0")
	}

	if _, err := stats.ParseSyncPolicy(c.Stats.SyncPolicy); err != nil {
		return fmt.Errorf("stats.sync_policy: %w", err)
	}

	if err := c.Frames.Validate(); err != nil {
		return err
	}

	if err := c.Pollers.Validate(); err != nil {
		return err
	}

	if err := c.OSD.Validate(); err != nil {
		return err
	}

	if c.Report.Enabled && c.Report.Interval <= 0 {
		return fmt.Errorf("report.interval must be > 0")
	}

	if err := c.Sinks.Validate(); err != nil {
		return err
	}

	if c.OTLP.Enabled && c.OTLP.Endpoint == "" {
		return fmt.Errorf("otlp.endpoint is required when enabled")
	}

	return nil
}

// SyncPolicy returns the parsed window sync policy.
func (c *Config) SyncPolicy() stats.SyncPolicy {
	policy, _ := stats.ParseSyncPolicy(c.Stats.SyncPolicy)

	return policy
}
