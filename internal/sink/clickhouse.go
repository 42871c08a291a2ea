package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfhud/internal/export"
)

// insertColumns is the column list of the reports table.
const insertColumns = "(report_id, window, window_start_date_time, host, instance, pid, category, name, label, value)"

// reportQueueSize bounds reports waiting for the batch loop.
const reportQueueSize = 256

// rowBatch is the subset of a ClickHouse batch the sink uses.
type rowBatch interface {
	Append(v ...any) error
	Abort() error
	Send() error
}

// batchPreparer opens insert batches.
type batchPreparer interface {
	prepare(ctx context.Context, query string) (rowBatch, error)
}

type connPreparer struct {
	conn clickhouse.Conn
}

func (c connPreparer) prepare(ctx context.Context, query string) (rowBatch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

// ClickHouseSink inserts report rows into ClickHouse in batches.
type ClickHouseSink struct {
	log      logrus.FieldLogger
	cfg      export.ClickHouseConfig
	writer   *export.ClickHouseWriter
	conn     batchPreparer
	health   *export.HealthMetrics
	instance string

	mu       sync.Mutex
	batch    []reportRow
	cancel   context.CancelFunc
	done     chan struct{}
	reportCh chan *Report
}

type reportRow struct {
	ReportID    string
	Window      uint64
	WindowStart time.Time
	Host        string
	Instance    string
	PID         int32
	Category    string
	Name        string
	Label       string
	Value       float64
}

var _ Sink = (*ClickHouseSink)(nil)

// NewClickHouseSink creates a ClickHouse sink. health may be nil.
func NewClickHouseSink(
	log logrus.FieldLogger,
	cfg export.ClickHouseConfig,
	health *export.HealthMetrics,
) *ClickHouseSink {
	writer := export.NewClickHouseWriter(log, cfg)

	return newClickHouseSink(log, writer.Config(), writer, nil, health)
}

func newClickHouseSink(
	log logrus.FieldLogger,
	cfg export.ClickHouseConfig,
	writer *export.ClickHouseWriter,
	conn batchPreparer,
	health *export.HealthMetrics,
) *ClickHouseSink {
	return &ClickHouseSink{
		log:      log.WithField("sink", "clickhouse"),
		cfg:      cfg,
		writer:   writer,
		conn:     conn,
		health:   health,
		instance: cfg.MetaInstanceName,
		batch:    make([]reportRow, 0, cfg.BatchSize),
		done:     make(chan struct{}),
		reportCh: make(chan *Report, reportQueueSize),
	}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Start(ctx context.Context) error {
	if s.writer != nil {
		if err := s.writer.Start(ctx); err != nil {
			return err
		}

		s.conn = connPreparer{conn: s.writer.Conn()}
	}

	if s.health != nil {
		s.health.ClickHouseConnected.WithLabelValues("clickhouse").Set(1)
	}

	ctx, s.cancel = context.WithCancel(ctx)

	go s.runLoop(ctx)

	s.log.WithField("table", s.cfg.QualifiedTable()).Info("ClickHouse sink started")

	return nil
}

func (s *ClickHouseSink) Stop() error {
	if s.cancel == nil {
		return s.stopWriter()
	}

	s.cancel()
	<-s.done

	// Drain reports queued after the loop exited.
	for drained := false; !drained; {
		select {
		case report := <-s.reportCh:
			s.appendRows(report)
		default:
			drained = true
		}
	}

	s.mu.Lock()
	remaining := s.batch
	s.batch = nil
	s.mu.Unlock()

	if len(remaining) > 0 {
		if err := s.flush(context.Background(), remaining); err != nil {
			s.log.WithError(err).Error("Final flush failed")
			s.reportExportError()
		}
	}

	return s.stopWriter()
}

func (s *ClickHouseSink) stopWriter() error {
	if s.health != nil {
		s.health.ClickHouseConnected.WithLabelValues("clickhouse").Set(0)
	}

	if s.writer == nil {
		return nil
	}

	return s.writer.Stop()
}

func (s *ClickHouseSink) HandleReport(report *Report) {
	select {
	case s.reportCh <- report:
	default:
		s.log.WithField("window", report.Window).
			Warn("ClickHouse sink queue full, dropping report")

		if s.health != nil {
			s.health.SinkReportsDropped.WithLabelValues("clickhouse").Inc()
		}
	}
}

func (s *ClickHouseSink) runLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case report := <-s.reportCh:
			if s.appendRows(report) {
				s.drainFlush(ctx, "Batch flush failed")
			}
		case <-ticker.C:
			s.drainFlush(ctx, "Periodic flush failed")
		}
	}
}

// appendRows adds the report's rows to the batch and reports whether the
// batch is full.
func (s *ClickHouseSink) appendRows(report *Report) bool {
	id := report.ID.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range report.Rows {
		s.batch = append(s.batch, reportRow{
			ReportID:    id,
			Window:      report.Window,
			WindowStart: report.WindowStart,
			Host:        report.Host,
			Instance:    s.instance,
			PID:         report.PID,
			Category:    row.Category,
			Name:        row.Name,
			Label:       row.Label,
			Value:       row.Value,
		})
	}

	return len(s.batch) >= s.cfg.BatchSize
}

func (s *ClickHouseSink) drainFlush(ctx context.Context, msg string) {
	s.mu.Lock()

	if len(s.batch) == 0 {
		s.mu.Unlock()

		return
	}

	toFlush := s.batch
	s.batch = make([]reportRow, 0, s.cfg.BatchSize)
	s.mu.Unlock()

	if err := s.flush(ctx, toFlush); err != nil {
		s.log.WithError(err).Error(msg)
		s.reportExportError()
	}
}

func (s *ClickHouseSink) flush(ctx context.Context, rows []reportRow) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()

	batch, err := s.conn.prepare(
		ctx,
		"INSERT INTO "+s.cfg.QualifiedTable()+" "+insertColumns,
	)
	if err != nil {
		s.recordBatchError("prepare")

		return fmt.Errorf("preparing batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(
			row.ReportID,
			row.Window,
			row.WindowStart,
			row.Host,
			row.Instance,
			row.PID,
			row.Category,
			row.Name,
			row.Label,
			row.Value,
		); err != nil {
			s.recordBatchError("append")
			_ = batch.Abort()

			return fmt.Errorf("appending row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		s.recordBatchError("send")

		return fmt.Errorf("sending batch of %d rows: %w", len(rows), err)
	}

	if s.health != nil {
		duration := time.Since(start)
		s.health.SinkFlushDuration.WithLabelValues("clickhouse").Observe(duration.Seconds())
		s.health.SinkBatchSize.WithLabelValues("clickhouse").Observe(float64(len(rows)))
		s.health.ClickHouseBatchDuration.WithLabelValues("send").Observe(duration.Seconds())
	}

	s.log.WithField("rows", len(rows)).Debug("Flushed report rows")

	return nil
}

func (s *ClickHouseSink) reportExportError() {
	if s.health == nil {
		return
	}

	s.health.ExportErrors.Inc()
}

// recordBatchError records a batch error with categorized error type.
func (s *ClickHouseSink) recordBatchError(errorType string) {
	if s.health == nil {
		return
	}

	s.health.ExportBatchErrors.WithLabelValues("clickhouse", errorType).Inc()
}
