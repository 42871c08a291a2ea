// Package http streams report rows as NDJSON to Vector or any HTTP
// collector.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"
)

const (
	// InstanceHeader carries the agent instance name on every request.
	InstanceHeader = "X-Perfhud-Instance"
	// RowsHeader carries the number of NDJSON lines in the body.
	RowsHeader = "X-Perfhud-Rows"

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 256
)

// Exporter implements processor.ItemExporter for HTTP NDJSON export.
type Exporter[T any] struct {
	cfg        Config
	client     *http.Client
	compressor *Compressor
	log        logrus.FieldLogger
}

// compile-time check that Exporter implements ItemExporter.
var _ processor.ItemExporter[any] = (*Exporter[any])(nil)

// NewExporter creates a new HTTP exporter.
func NewExporter[T any](log logrus.FieldLogger, cfg Config) (*Exporter[T], error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	compressor, err := NewCompressor(cfg.Compression, cfg.MinCompressBytes)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * 2,
		MaxIdleConnsPerHost: cfg.Workers * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   !cfg.IsKeepAlive(),
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.ExportTimeout,
	}

	return &Exporter[T]{
		cfg:        cfg,
		client:     client,
		compressor: compressor,
		log:        log.WithField("component", "http_exporter"),
	}, nil
}

// ExportItems exports a batch of items to the HTTP endpoint as NDJSON.
func (e *Exporter[T]) ExportItems(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	buf.Grow(len(items) * 192)

	encoder := json.NewEncoder(&buf)
	rows := 0

	for _, item := range items {
		if item == nil {
			continue
		}

		if err := encoder.Encode(item); err != nil {
			return fmt.Errorf("encoding item: %w", err)
		}

		rows++
	}

	if rows == 0 {
		return nil
	}

	data := buf.Bytes()

	body, encoding, err := e.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("compressing data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set(RowsHeader, strconv.Itoa(rows))

	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	if e.cfg.MetaInstanceName != "" {
		req.Header.Set(InstanceHeader, e.cfg.MetaInstanceName)
	}

	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)

		return fmt.Errorf("unexpected status code: %d: %s",
			resp.StatusCode, bytes.TrimSpace(detail))
	}

	// Drain response body to enable connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	e.log.WithFields(logrus.Fields{
		"rows":     rows,
		"bytes":    len(data),
		"sent":     len(body),
		"encoding": encoding,
	}).Debug("Exported report rows via HTTP")

	return nil
}

// Shutdown shuts down the exporter.
func (e *Exporter[T]) Shutdown(_ context.Context) error {
	if e.compressor != nil {
		return e.compressor.Close()
	}

	return nil
}

// NewProcessor creates a BatchItemProcessor with this exporter.
func NewProcessor[T any](
	log logrus.FieldLogger,
	cfg Config,
	name string,
) (*processor.BatchItemProcessor[T], error) {
	exporter, err := NewExporter[T](log, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	proc, err := processor.NewBatchItemProcessor[T](
		exporter,
		name,
		log,
		processor.WithMaxQueueSize(cfg.MaxQueueSize),
		processor.WithBatchTimeout(cfg.BatchTimeout),
		processor.WithExportTimeout(cfg.ExportTimeout),
		processor.WithMaxExportBatchSize(cfg.BatchSize),
		processor.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return proc, nil
}
