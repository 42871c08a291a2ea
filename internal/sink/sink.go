// Package sink delivers per-window reports to log, HTTP and ClickHouse
// destinations.
package sink

import (
	"context"
	"fmt"

	"github.com/ethpandaops/perfhud/internal/export"
	httpexport "github.com/ethpandaops/perfhud/internal/export/http"
)

// Config holds configuration for all sinks.
type Config struct {
	Log        LogConfig         `yaml:"log"`
	HTTP       httpexport.Config `yaml:"http"`
	ClickHouse ClickHouseConfig  `yaml:"clickhouse"`
}

// ClickHouseConfig enables the ClickHouse sink.
type ClickHouseConfig struct {
	Enabled bool `yaml:"enabled"`

	export.ClickHouseConfig `yaml:",inline"`
}

// Validate validates every enabled sink.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("sinks.http: %w", err)
	}

	if c.ClickHouse.Enabled {
		if c.ClickHouse.Endpoint == "" {
			return fmt.Errorf("sinks.clickhouse.endpoint is required when enabled")
		}

		if c.ClickHouse.Database == "" {
			return fmt.Errorf("sinks.clickhouse.database is required when enabled")
		}
	}

	return nil
}

// Sink consumes reports.
type Sink interface {
	// Name returns the sink's name for logging.
	Name() string
	// Start initializes the sink.
	Start(ctx context.Context) error
	// Stop flushes pending reports and shuts down the sink.
	Stop() error
	// HandleReport queues a report. It must not block.
	HandleReport(report *Report)
}
