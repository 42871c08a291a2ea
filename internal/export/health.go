package export

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "perfhud"

// HealthConfig configures the Prometheus health metrics server.
type HealthConfig struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// HealthMetrics exposes Prometheus metrics for the agent and the values
// it collects. Extra handlers such as /overlay and /frames are mounted on
// the same server.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	handlersMu sync.Mutex
	handlers   map[string]http.Handler

	// === Agent ===
	PollsTotal             *prometheus.CounterVec   // poller
	PollErrors             *prometheus.CounterVec   // poller
	PollDuration           *prometheus.HistogramVec // poller
	CounterDiscontinuities *prometheus.CounterVec   // poller
	PublishesTotal         *prometheus.CounterVec   // publisher
	PublishErrors          *prometheus.CounterVec   // publisher
	ReportsEmitted         prometheus.Counter
	ReportRows             prometheus.Counter
	ExportErrors           prometheus.Counter
	TargetPID              prometheus.Gauge
	CurrentWindow          prometheus.Gauge
	ReportWindowDuration   prometheus.Histogram
	AgentStartDuration     *prometheus.GaugeVec // phase

	// === Sinks ===
	SinkReportsDropped      *prometheus.CounterVec   // sink
	SinkFlushDuration       *prometheus.HistogramVec // sink
	SinkBatchSize           *prometheus.HistogramVec // sink
	ClickHouseConnected     *prometheus.GaugeVec     // sink
	ExportBatchErrors       *prometheus.CounterVec   // sink, error_type
	ClickHouseBatchDuration *prometheus.HistogramVec // operation

	// === Collected values ===
	FrameFPS        prometheus.Gauge
	FrameTimeMs     prometheus.Gauge
	FrameP99Ms      prometheus.Gauge
	FrameLow1FPS    prometheus.Gauge
	FrameHitches    prometheus.Gauge
	CPULoad         *prometheus.GaugeVec // cpu
	IOBytesPerSec   *prometheus.GaugeVec // direction
	IOOpsPerSec     *prometheus.GaugeVec // direction
	MemoryBytes     *prometheus.GaugeVec // kind
	DiskBusyPercent *prometheus.GaugeVec // disk
	DiskBytesPerSec *prometheus.GaugeVec // disk, direction
	PagefileBytes   *prometheus.GaugeVec // device, kind

	running atomic.Bool
}

// NewHealthMetrics creates a new health metrics server.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,
		handlers: make(map[string]http.Handler, 2),

		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Total polls per poller.",
			},
			[]string{"poller"},
		),
		PollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_errors_total",
				Help:      "Total failed polls per poller.",
			},
			[]string{"poller"},
		),
		PollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Time taken by one poll.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}, // 100us-100ms
			},
			[]string{"poller"},
		),
		CounterDiscontinuities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "counter_discontinuities_total",
				Help:      "Total OS counters observed going backwards.",
			},
			[]string{"poller"},
		),
		PublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "overlay_publishes_total",
				Help:      "Total overlay publishes per publisher.",
			},
			[]string{"publisher"},
		),
		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "overlay_publish_errors_total",
				Help:      "Total failed overlay publishes per publisher.",
			},
			[]string{"publisher"},
		),
		ReportsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_emitted_total",
			Help:      "Total reports handed to sinks.",
		}),
		ReportRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_rows_total",
			Help:      "Total report rows handed to sinks.",
		}),
		ExportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_errors_total",
			Help:      "Total export errors across all sinks.",
		}),
		TargetPID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_pid",
			Help:      "PID of the observed process, 0 when unresolved.",
		}),
		CurrentWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_window",
			Help:      "Current report window number.",
		}),
		ReportWindowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_window_duration_seconds",
			Help:      "Observed time between report window changes.",
			Buckets:   []float64{0.5, 0.9, 1, 1.1, 1.5, 2, 5},
		}),
		AgentStartDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "agent_start_duration_seconds",
				Help:      "Duration of agent startup phases.",
			},
			[]string{"phase"},
		),

		SinkReportsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_reports_dropped_total",
				Help:      "Total reports dropped because a sink queue was full.",
			},
			[]string{"sink"},
		),
		SinkFlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_flush_duration_seconds",
				Help:      "Duration of sink flush operations.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}, // 1ms-1s
			},
			[]string{"sink"},
		),
		SinkBatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_batch_size",
				Help:      "Rows per sink flush.",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000},
			},
			[]string{"sink"},
		),
		ClickHouseConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "clickhouse_connected",
				Help:      "Whether the sink's ClickHouse connection is up (1=yes, 0=no).",
			},
			[]string{"sink"},
		),
		ExportBatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_batch_errors_total",
				Help:      "Batch export errors by sink and stage.",
			},
			[]string{"sink", "error_type"},
		),
		ClickHouseBatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "clickhouse_batch_duration_seconds",
				Help:      "Duration of ClickHouse batch operations.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5}, // 1ms-500ms
			},
			[]string{"operation"},
		),

		FrameFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_fps",
			Help:      "Frames per second over the frame window.",
		}),
		FrameTimeMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_time_ms",
			Help:      "Mean frame time over the frame window.",
		}),
		FrameP99Ms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_time_p99_ms",
			Help:      "99th percentile frame time over the frame window.",
		}),
		FrameLow1FPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_low1_fps",
			Help:      "1% low frame rate over the frame window.",
		}),
		FrameHitches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_hitches",
			Help:      "Hitches detected in the frame window.",
		}),
		CPULoad: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cpu_load_percent",
				Help:      "Smoothed CPU load per logical CPU and in total.",
			},
			[]string{"cpu"},
		),
		IOBytesPerSec: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "io_bytes_per_second",
				Help:      "Smoothed target process I/O throughput.",
			},
			[]string{"direction"},
		),
		IOOpsPerSec: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "io_ops_per_second",
				Help:      "Smoothed target process I/O operations.",
			},
			[]string{"direction"},
		),
		MemoryBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_bytes",
				Help:      "Target process and system memory.",
			},
			[]string{"kind"},
		),
		DiskBusyPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "disk_busy_percent",
				Help:      "Smoothed disk busy time.",
			},
			[]string{"disk"},
		),
		DiskBytesPerSec: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "disk_bytes_per_second",
				Help:      "Disk throughput averaged over the mean window.",
			},
			[]string{"disk", "direction"},
		),
		PagefileBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pagefile_bytes",
				Help:      "Pagefile usage, size and peak.",
			},
			[]string{"device", "kind"},
		),
	}

	reg.MustRegister(
		h.PollsTotal,
		h.PollErrors,
		h.PollDuration,
		h.CounterDiscontinuities,
		h.PublishesTotal,
		h.PublishErrors,
		h.ReportsEmitted,
		h.ReportRows,
		h.ExportErrors,
		h.TargetPID,
		h.CurrentWindow,
		h.ReportWindowDuration,
		h.AgentStartDuration,
	)

	reg.MustRegister(
		h.SinkReportsDropped,
		h.SinkFlushDuration,
		h.SinkBatchSize,
		h.ClickHouseConnected,
		h.ExportBatchErrors,
		h.ClickHouseBatchDuration,
	)

	reg.MustRegister(
		h.FrameFPS,
		h.FrameTimeMs,
		h.FrameP99Ms,
		h.FrameLow1FPS,
		h.FrameHitches,
		h.CPULoad,
		h.IOBytesPerSec,
		h.IOOpsPerSec,
		h.MemoryBytes,
		h.DiskBusyPercent,
		h.DiskBytesPerSec,
		h.PagefileBytes,
	)

	return h
}

// ObservePoll records a poll outcome.
func (h *HealthMetrics) ObservePoll(poller string, took time.Duration, err error) {
	h.PollsTotal.WithLabelValues(poller).Inc()
	h.PollDuration.WithLabelValues(poller).Observe(took.Seconds())

	if err != nil {
		h.PollErrors.WithLabelValues(poller).Inc()
	}
}

// ObserveDiscontinuity records a counter that went backwards.
func (h *HealthMetrics) ObserveDiscontinuity(poller, _ string) {
	h.CounterDiscontinuities.WithLabelValues(poller).Inc()
}

// ObservePublish records an overlay publish outcome.
func (h *HealthMetrics) ObservePublish(publisher string, err error) {
	h.PublishesTotal.WithLabelValues(publisher).Inc()

	if err != nil {
		h.PublishErrors.WithLabelValues(publisher).Inc()
	}
}

// RegisterFrameCounters exposes the frame tracker's running totals.
func (h *HealthMetrics) RegisterFrameCounters(received, dropped func() uint64) {
	h.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total frame reports accepted.",
		}, func() float64 { return float64(received()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total frame reports discarded.",
		}, func() float64 { return float64(dropped()) }),
	)
}

// Handle mounts an extra handler. Must be called before Start.
func (h *HealthMetrics) Handle(pattern string, handler http.Handler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()

	h.handlers[pattern] = handler
}

// Start begins serving the /metrics endpoint.
func (h *HealthMetrics) Start(_ context.Context) error {
	if h.addr == "" {
		h.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	h.handlersMu.Lock()
	for pattern, handler := range h.handlers {
		mux.Handle(pattern, handler)
	}
	h.handlersMu.Unlock()

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop gracefully shuts down the health metrics server.
func (h *HealthMetrics) Stop() error {
	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
