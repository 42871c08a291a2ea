package sink

import (
	"context"
	"fmt"
	"time"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfhud/internal/export"
	httpexport "github.com/ethpandaops/perfhud/internal/export/http"
)

// ReportRowJSON is the JSON schema for HTTP export of report rows.
type ReportRowJSON struct {
	ReportID            string  `json:"report_id"`
	Window              uint64  `json:"window"`
	WindowStartDateTime string  `json:"window_start_date_time"`
	Host                string  `json:"host"`
	PID                 int32   `json:"pid"`
	Category            string  `json:"category"`
	Name                string  `json:"name"`
	Label               string  `json:"label,omitempty"`
	Value               float64 `json:"value"`
	MetaInstanceName    string  `json:"meta_instance_name,omitempty"`
}

// toReportRowsJSON flattens a report for HTTP export.
func toReportRowsJSON(report *Report, instance string) []*ReportRowJSON {
	rows := make([]*ReportRowJSON, 0, len(report.Rows))
	start := report.WindowStart.UTC().Format(time.RFC3339Nano)
	id := report.ID.String()

	for _, row := range report.Rows {
		rows = append(rows, &ReportRowJSON{
			ReportID:            id,
			Window:              report.Window,
			WindowStartDateTime: start,
			Host:                report.Host,
			PID:                 report.PID,
			Category:            row.Category,
			Name:                row.Name,
			Label:               row.Label,
			Value:               row.Value,
			MetaInstanceName:    instance,
		})
	}

	return rows
}

// HTTPSink streams report rows as NDJSON through a batch processor.
type HTTPSink struct {
	log    logrus.FieldLogger
	cfg    httpexport.Config
	health *export.HealthMetrics
	proc   *processor.BatchItemProcessor[ReportRowJSON]

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Sink = (*HTTPSink)(nil)

// NewHTTPSink creates an HTTP sink. health may be nil.
func NewHTTPSink(
	log logrus.FieldLogger,
	cfg httpexport.Config,
	health *export.HealthMetrics,
) (*HTTPSink, error) {
	proc, err := httpexport.NewProcessor[ReportRowJSON](log, cfg, "report_http")
	if err != nil {
		return nil, fmt.Errorf("creating HTTP processor: %w", err)
	}

	return &HTTPSink{
		log:    log.WithField("sink", "http"),
		cfg:    cfg,
		health: health,
		proc:   proc,
	}, nil
}

func (s *HTTPSink) Name() string { return "http" }

func (s *HTTPSink) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.proc.Start(s.ctx)

	s.log.WithField("address", s.cfg.Address).Info("HTTP sink started")

	return nil
}

func (s *HTTPSink) Stop() error {
	if err := s.proc.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutting down HTTP processor: %w", err)
	}

	if s.cancel != nil {
		s.cancel()
	}

	return nil
}

func (s *HTTPSink) HandleReport(report *Report) {
	if s.ctx == nil || len(report.Rows) == 0 {
		return
	}

	rows := toReportRowsJSON(report, s.cfg.MetaInstanceName)

	if err := s.proc.Write(s.ctx, rows); err != nil {
		s.log.WithError(err).Debug("HTTP export failed (queue may be full)")

		if s.health != nil {
			s.health.SinkReportsDropped.WithLabelValues("http").Inc()
			s.health.ExportErrors.Inc()
		}
	}
}
