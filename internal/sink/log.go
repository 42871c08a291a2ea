package sink

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogConfig configures the log sink.
type LogConfig struct {
	Enabled bool `yaml:"enabled"`
	// Rows logs every row at debug level in addition to the summary.
	Rows bool `yaml:"rows"`
}

// LogSink writes a summary line per report.
type LogSink struct {
	log logrus.FieldLogger
	cfg LogConfig
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a log sink.
func NewLogSink(log logrus.FieldLogger, cfg LogConfig) *LogSink {
	return &LogSink{
		log: log.WithField("sink", "log"),
		cfg: cfg,
	}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Start(_ context.Context) error { return nil }

func (s *LogSink) Stop() error { return nil }

func (s *LogSink) HandleReport(report *Report) {
	fields := logrus.Fields{
		"window": report.Window,
		"pid":    report.PID,
		"rows":   len(report.Rows),
	}

	if v, ok := report.Value(CategoryFrame, "fps", ""); ok {
		fields["fps"] = v
	}

	if v, ok := report.Value(CategoryCPU, "load", "total"); ok {
		fields["cpu"] = v
	}

	if v, ok := report.Value(CategoryMemory, "working_set", ""); ok {
		fields["working_set"] = v
	}

	s.log.WithFields(fields).Info("Report")

	if !s.cfg.Rows {
		return
	}

	for _, row := range report.Rows {
		s.log.WithFields(logrus.Fields{
			"window":   report.Window,
			"category": row.Category,
			"name":     row.Name,
			"label":    row.Label,
			"value":    row.Value,
		}).Debug("Report row")
	}
}
