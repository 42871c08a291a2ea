package export

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
)

// ClickHouseConfig configures the ClickHouse writer.
type ClickHouseConfig struct {
	// Endpoint is the ClickHouse native protocol address.
	Endpoint string `yaml:"endpoint"`

	// Database is the target database name.
	Database string `yaml:"database"`

	// Table is the target table name.
	// Defaults to perfhud_reports.
	Table string `yaml:"table"`

	// BatchSize is the number of rows per batch insert.
	// Defaults to 10000.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the maximum time between flushes.
	// Defaults to 1s.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// Username for ClickHouse authentication.
	Username string `yaml:"username"`

	// Password for ClickHouse authentication.
	Password string `yaml:"password"`

	// MetaInstanceName identifies this agent in inserted rows.
	// Defaults to the hostname.
	MetaInstanceName string `yaml:"meta_instance_name"`
}

// DefaultTable is the table reports are written to.
const DefaultTable = "perfhud_reports"

// QualifiedTable returns the database-qualified target table.
func (c ClickHouseConfig) QualifiedTable() string {
	table := c.Table
	if table == "" {
		table = DefaultTable
	}

	if c.Database == "" {
		return table
	}

	return c.Database + "." + table
}

// DSN returns the clickhouse:// connection string used by schema
// migrations.
func (c ClickHouseConfig) DSN() string {
	u := url.URL{
		Scheme: "clickhouse",
		Host:   c.Endpoint,
	}

	if c.Database != "" {
		u.Path = "/" + c.Database
	}

	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}

	return u.String()
}

// ClickHouseWriter manages writes to ClickHouse.
type ClickHouseWriter struct {
	log  logrus.FieldLogger
	cfg  ClickHouseConfig
	conn clickhouse.Conn
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(
	log logrus.FieldLogger,
	cfg ClickHouseConfig,
) *ClickHouseWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10000
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	return &ClickHouseWriter{
		log: log.WithField("component", "clickhouse"),
		cfg: cfg,
	}
}

// Start opens the ClickHouse connection.
func (w *ClickHouseWriter) Start(ctx context.Context) error {
	opts := &clickhouse.Options{
		Addr: []string{w.cfg.Endpoint},
		Auth: clickhouse.Auth{
			Database: w.cfg.Database,
			Username: w.cfg.Username,
			Password: w.cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("opening ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("pinging ClickHouse: %w", err)
	}

	w.conn = conn

	w.log.WithField("endpoint", w.cfg.Endpoint).
		Info("ClickHouse writer connected")

	return nil
}

// Conn returns the underlying ClickHouse connection.
func (w *ClickHouseWriter) Conn() clickhouse.Conn {
	return w.conn
}

// Config returns the writer configuration.
func (w *ClickHouseWriter) Config() ClickHouseConfig {
	return w.cfg
}

// Stop closes the ClickHouse connection.
func (w *ClickHouseWriter) Stop() error {
	if w.conn != nil {
		return w.conn.Close()
	}

	return nil
}
