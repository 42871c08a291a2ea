package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfhud/internal/stats"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Health.Addr)
	assert.Equal(t, stats.DefaultCapacity, cfg.Stats.Capacity)
	assert.Equal(t, stats.Locked, cfg.SyncPolicy())
	assert.True(t, cfg.Frames.Enabled)
	assert.True(t, cfg.Pollers.CPU.Show)
	assert.Equal(t, 500*time.Millisecond, cfg.OSD.Interval)
	assert.Equal(t, time.Second, cfg.Report.Interval)
	assert.False(t, cfg.Sinks.HTTP.Enabled)
	assert.True(t, cfg.Target.IsSelf())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
health:
  addr: ":9091"
target:
  process_names:
    - hl2_linux
  cache_ttl: 5s
stats:
  capacity: 240
  sync_policy: relaxed
frames:
  window: 2s
  synthetic_rate: 60
cpu:
  simple: true
disk:
  devices:
    - sda
    - nvme0n1
io:
  show: false
osd:
  interval: 250ms
  slot: hud
  terminal:
    enabled: true
report:
  interval: 5s
  instance: rig-01
sinks:
  log:
    enabled: true
  http:
    enabled: true
    address: "http://vector:8080"
    compression: zstd
  clickhouse:
    enabled: true
    endpoint: "clickhouse:9000"
    database: perf
    batch_size: 500
otlp:
  enabled: true
  endpoint: "otel:4317"
  insecure: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9091", cfg.Health.Addr)
	assert.Equal(t, []string{"hl2_linux"}, cfg.Target.ProcessNames)
	assert.Equal(t, 5*time.Second, cfg.Target.CacheTTL)
	assert.Equal(t, 240, cfg.Stats.Capacity)
	assert.Equal(t, stats.Relaxed, cfg.SyncPolicy())
	assert.Equal(t, 2*time.Second, cfg.Frames.Window)
	assert.Equal(t, 60.0, cfg.Frames.SyntheticRate)

	// Unset fields keep their defaults.
	assert.Equal(t, stats.DefaultHitchTolerance, cfg.Frames.HitchTolerance)
	assert.True(t, cfg.Pollers.CPU.Show)
	assert.True(t, cfg.Pollers.CPU.Simple)
	assert.Equal(t, []string{"sda", "nvme0n1"}, cfg.Pollers.Disk.Devices)
	assert.Equal(t, 3*time.Second, cfg.Pollers.Disk.MeanWindow)
	assert.False(t, cfg.Pollers.IO.Show)

	assert.Equal(t, 250*time.Millisecond, cfg.OSD.Interval)
	assert.Equal(t, "hud", cfg.OSD.Slot)
	assert.True(t, cfg.OSD.Terminal.Enabled)
	assert.True(t, cfg.OSD.Store.Enabled)

	assert.Equal(t, 5*time.Second, cfg.Report.Interval)
	assert.Equal(t, "rig-01", cfg.Report.Instance)

	assert.True(t, cfg.Sinks.Log.Enabled)
	assert.Equal(t, "zstd", cfg.Sinks.HTTP.Compression)
	assert.Equal(t, 512, cfg.Sinks.HTTP.BatchSize)
	assert.Equal(t, "perf", cfg.Sinks.ClickHouse.Database)
	assert.Equal(t, 500, cfg.Sinks.ClickHouse.BatchSize)

	assert.True(t, cfg.OTLP.Enabled)
	assert.Equal(t, "otel:4317", cfg.OTLP.Endpoint)
	assert.True(t, cfg.OTLP.Insecure)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	// A leading tab is invalid YAML indentation.
	path := writeConfig(t, "\t- bad")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	path := writeConfig(t, "osd:\n  interval: 0s\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "osd.interval must be > 0")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "negative pid",
			mutate:  func(c *Config) { c.Target.PID = -1 },
			wantErr: "target.pid must be >= 0",
		},
		{
			name:    "zero capacity",
			mutate:  func(c *Config) { c.Stats.Capacity = 0 },
			wantErr: "stats.capacity must be > 0",
		},
		{
			name:    "unknown sync policy",
			mutate:  func(c *Config) { c.Stats.SyncPolicy = "optimistic" },
			wantErr: "stats.sync_policy",
		},
		{
			name:    "hitch tolerance at one",
			mutate:  func(c *Config) { c.Frames.HitchTolerance = 1 },
			wantErr: "frames.hitch_tolerance must be > 1",
		},
		{
			name:    "zero cpu interval",
			mutate:  func(c *Config) { c.Pollers.CPU.Interval = 0 },
			wantErr: "cpu.interval must be > 0",
		},
		{
			name: "zero cpu interval when hidden",
			mutate: func(c *Config) {
				c.Pollers.CPU.Show = false
				c.Pollers.CPU.Interval = 0
			},
		},
		{
			name:    "zero report interval",
			mutate:  func(c *Config) { c.Report.Interval = 0 },
			wantErr: "report.interval must be > 0",
		},
		{
			name: "zero report interval when disabled",
			mutate: func(c *Config) {
				c.Report.Enabled = false
				c.Report.Interval = 0
			},
		},
		{
			name:    "http sink without address",
			mutate:  func(c *Config) { c.Sinks.HTTP.Enabled = true },
			wantErr: "sinks.http",
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.OTLP.Enabled = true },
			wantErr: "otlp.endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
