package http

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config configures NDJSON export of report rows over HTTP.
type Config struct {
	// Enabled enables the HTTP exporter.
	Enabled bool `yaml:"enabled"`

	// Address is the collector URL rows are POSTed to.
	Address string `yaml:"address"`

	// Headers are added to every request, e.g. an Authorization token.
	Headers map[string]string `yaml:"headers"`

	// Compression is one of none, gzip, zstd, zlib, snappy.
	// Defaults to gzip.
	Compression string `yaml:"compression"`

	// MinCompressBytes leaves smaller bodies uncompressed.
	// Zero compresses every body. Defaults to 1024.
	MinCompressBytes int `yaml:"min_compress_bytes"`

	// BatchSize is the maximum number of rows per request.
	// Defaults to 512.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout bounds how long a partial batch waits.
	// Defaults to 5s.
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// ExportTimeout bounds a single request.
	// Defaults to 15s.
	ExportTimeout time.Duration `yaml:"export_timeout"`

	// MaxQueueSize is the number of rows buffered while the collector is
	// slow. Rows are dropped once it is full. Defaults to 16384.
	MaxQueueSize int `yaml:"max_queue_size"`

	// Workers is the number of concurrent senders. Defaults to 1.
	Workers int `yaml:"workers"`

	// KeepAlive reuses connections between batches. Defaults to true.
	KeepAlive *bool `yaml:"keep_alive"`

	// UserAgent is sent with every request. Set by the agent.
	UserAgent string `yaml:"-"`

	// MetaInstanceName is sent in the instance header and stamped on
	// exported rows. Defaults to the hostname.
	MetaInstanceName string `yaml:"meta_instance_name"`
}

// DefaultConfig returns the disabled exporter with its tuning defaults.
func DefaultConfig() Config {
	keepAlive := true

	return Config{
		Compression:      CompressionGzip,
		MinCompressBytes: 1024,
		BatchSize:        512,
		BatchTimeout:     5 * time.Second,
		ExportTimeout:    15 * time.Second,
		MaxQueueSize:     16384,
		Workers:          1,
		KeepAlive:        &keepAlive,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Address == "" {
		return errors.New("http address is required when enabled")
	}

	u, err := url.Parse(c.Address)
	if err != nil {
		return fmt.Errorf("parsing http address: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("http address must use http or https, got %q", u.Scheme)
	}

	if c.BatchSize <= 0 {
		return errors.New("batch_size must be greater than 0")
	}

	if c.MaxQueueSize <= 0 {
		return errors.New("max_queue_size must be greater than 0")
	}

	if c.BatchSize > c.MaxQueueSize {
		return errors.New("batch_size cannot be greater than max_queue_size")
	}

	if c.Workers <= 0 {
		return errors.New("workers must be greater than 0")
	}

	if c.MinCompressBytes < 0 {
		return errors.New("min_compress_bytes must be >= 0")
	}

	if c.Compression != "" && c.Compression != CompressionNone {
		if _, ok := contentEncodings[c.Compression]; !ok {
			return errors.New("invalid compression type: " + c.Compression)
		}
	}

	return nil
}

// ApplyDefaults fills unset tuning fields. MinCompressBytes is left
// alone since zero is meaningful.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Compression == "" {
		c.Compression = defaults.Compression
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaults.BatchTimeout
	}

	if c.ExportTimeout <= 0 {
		c.ExportTimeout = defaults.ExportTimeout
	}

	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaults.MaxQueueSize
	}

	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}

	if c.KeepAlive == nil {
		c.KeepAlive = defaults.KeepAlive
	}
}

// IsKeepAlive returns whether HTTP keep-alive is enabled.
func (c *Config) IsKeepAlive() bool {
	if c.KeepAlive == nil {
		return true
	}

	return *c.KeepAlive
}
