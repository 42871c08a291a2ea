// Package agent wires the pollers, frame tracking, overlay and report
// sinks into one running process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfhud/internal/clock"
	"github.com/ethpandaops/perfhud/internal/export"
	"github.com/ethpandaops/perfhud/internal/frame"
	"github.com/ethpandaops/perfhud/internal/overlay"
	"github.com/ethpandaops/perfhud/internal/pid"
	"github.com/ethpandaops/perfhud/internal/poller"
	"github.com/ethpandaops/perfhud/internal/sink"
	"github.com/ethpandaops/perfhud/internal/source"
	"github.com/ethpandaops/perfhud/internal/version"
)

const (
	// reportWindowsPerEpoch groups report windows for the wall clock.
	reportWindowsPerEpoch = 60

	// attachRetryInterval is the wait between failed session attaches.
	attachRetryInterval = 5 * time.Second

	// metricsInterval is how often Prometheus gauges are refreshed.
	metricsInterval = time.Second
)

// Agent is the top-level orchestrator for perfhud.
type Agent interface {
	// Start initializes all components and begins observation.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
}

type agent struct {
	log      logrus.FieldLogger
	cfg      *Config
	health   *export.HealthMetrics
	otlp     *export.OTLPExporter
	clk      clock.Clock
	session  *source.Session
	pollers  []poller.Poller
	sources  *overlay.Context
	tracker  *frame.Tracker
	loop     *frame.PacedLoop
	renderer *overlay.Renderer
	sinks    []sink.Sink
	reports  clock.ReportClock
	instance string

	lastWindow atomic.Int64
	lastEmit   atomic.Int64

	shutdown atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new Agent.
func New(log logrus.FieldLogger, cfg *Config) (Agent, error) {
	health := export.NewHealthMetrics(log, cfg.Health)
	clk := clock.New()

	instance := cfg.Report.Instance
	if instance == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("reading hostname: %w", err)
		}

		instance = hostname
	}

	resolver := pid.NewResolver(log, cfg.Target, nil)

	a := &agent{
		log:      log.WithField("component", "agent"),
		cfg:      cfg,
		health:   health,
		clk:      clk,
		session:  source.NewSession(log, resolver, nil),
		sources:  &overlay.Context{},
		sinks:    make([]sink.Sink, 0, 3),
		instance: instance,
	}

	a.buildPollers()

	if err := a.buildFrames(); err != nil {
		return nil, err
	}

	a.buildOverlay()

	if err := a.buildSinks(); err != nil {
		return nil, err
	}

	if cfg.OTLP.Enabled {
		a.otlp = export.NewOTLPExporter(log, cfg.OTLP.OTLPConfig, instance)
	}

	return a, nil
}

func (a *agent) buildPollers() {
	cfg := a.cfg.Pollers
	opts := poller.Options{
		Clock:    a.clk,
		Policy:   a.cfg.SyncPolicy(),
		Capacity: a.cfg.Stats.Capacity,
		Observer: a.health,
	}
	host := source.NewHost()

	if cfg.CPU.Show {
		p := poller.NewCPU(cfg.CPU, opts, host)
		a.sources.CPU = p
		a.pollers = append(a.pollers, p)
	}

	if cfg.Disk.Show {
		p := poller.NewDisk(cfg.Disk, opts, host)
		a.sources.Disk = p
		a.pollers = append(a.pollers, p)
	}

	if cfg.Pagefile.Show {
		p := poller.NewPagefile(cfg.Pagefile, opts, host)
		a.sources.Pagefile = p
		a.pollers = append(a.pollers, p)
	}

	if cfg.Memory.Show {
		p := poller.NewMemory(cfg.Memory, opts, a.session, host, source.NewOSStat())
		a.sources.Memory = p
		a.pollers = append(a.pollers, p)
	}

	if cfg.IO.Show {
		p := poller.NewIO(cfg.IO, opts, a.session, host)
		a.sources.IO = p
		a.pollers = append(a.pollers, p)
	}
}

func (a *agent) buildFrames() error {
	if !a.cfg.Frames.Enabled {
		return nil
	}

	tracker, err := frame.NewTracker(
		a.cfg.Frames, a.clk, a.cfg.Stats.Capacity, a.cfg.SyncPolicy(),
	)
	if err != nil {
		return fmt.Errorf("creating frame tracker: %w", err)
	}

	a.tracker = tracker
	a.sources.Frames = tracker

	a.health.Handle("/frames", frame.NewServer(a.log, a.clk, tracker))
	a.health.RegisterFrameCounters(tracker.Received, tracker.Dropped)

	if a.cfg.Frames.SyntheticRate > 0 {
		a.loop = frame.NewPacedLoop(a.log, a.clk, tracker, a.cfg.Frames.SyntheticRate)
	}

	return nil
}

func (a *agent) buildOverlay() {
	cfg := a.cfg.OSD
	if !cfg.Enabled {
		return
	}

	publishers := make([]overlay.Publisher, 0, 4)

	if cfg.Store.Enabled {
		store := overlay.NewStore(cfg.Store.TTL, cfg.Slot)
		a.health.Handle("/overlay", store)
		publishers = append(publishers, store)
	}

	if cfg.Terminal.Enabled {
		publishers = append(publishers, overlay.NewTerminalPublisher(cfg.Terminal))
	}

	if cfg.Websocket.Enabled {
		publishers = append(publishers, overlay.NewWebsocketPublisher(a.log, cfg.Websocket))
	}

	if cfg.Log.Enabled {
		publishers = append(publishers, overlay.NewLogPublisher(a.log))
	}

	formatter := overlay.NewFormatter(overlay.FormatOptions{
		Title:       cfg.Title,
		TimeFormat:  cfg.TimeFormat,
		CPUSimple:   a.cfg.Pollers.CPU.Simple,
		FrameWindow: a.cfg.Frames.Window,
	})

	a.renderer = overlay.NewRenderer(a.log, cfg, formatter, a.sources, publishers, a.health)
}

func (a *agent) buildSinks() error {
	cfg := a.cfg.Sinks

	if cfg.Log.Enabled {
		a.sinks = append(a.sinks, sink.NewLogSink(a.log, cfg.Log))
	}

	if cfg.HTTP.Enabled {
		httpCfg := cfg.HTTP
		httpCfg.UserAgent = version.UserAgent()

		if httpCfg.MetaInstanceName == "" {
			httpCfg.MetaInstanceName = a.instance
		}

		s, err := sink.NewHTTPSink(a.log, httpCfg, a.health)
		if err != nil {
			return fmt.Errorf("creating http sink: %w", err)
		}

		a.sinks = append(a.sinks, s)
	}

	if cfg.ClickHouse.Enabled {
		chCfg := cfg.ClickHouse.ClickHouseConfig
		if chCfg.MetaInstanceName == "" {
			chCfg.MetaInstanceName = a.instance
		}

		a.sinks = append(a.sinks, sink.NewClickHouseSink(a.log, chCfg, a.health))
	}

	return nil
}

func (a *agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	started := time.Now()

	// 1. Start health metrics server.
	if err := a.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	// 2. Attach the OS session. A missing target is retried in the
	// background; machine-wide pollers run regardless.
	if err := a.session.Attach(ctx); err != nil {
		a.log.WithError(err).Warn("Session attach failed, retrying in background")

		a.wg.Add(1)

		go a.attachLoop(ctx)
	}

	a.health.AgentStartDuration.WithLabelValues("attach").Set(time.Since(started).Seconds())

	// 3. Start OTLP export.
	if a.otlp != nil {
		if err := a.otlp.Start(ctx); err != nil {
			return fmt.Errorf("starting otlp exporter: %w", err)
		}

		if err := a.otlp.ObserveGauges(gaugeNames(), func() []export.Gauge {
			return toGauges(a.snapshot(0, time.Now()))
		}); err != nil {
			return fmt.Errorf("registering otlp gauges: %w", err)
		}
	}

	// 4. Start all enabled sinks.
	for _, s := range a.sinks {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("starting sink %s: %w", s.Name(), err)
		}

		a.log.WithField("sink", s.Name()).Info("Sink started")
	}

	a.health.AgentStartDuration.WithLabelValues("sinks").Set(time.Since(started).Seconds())

	// 5. Start pollers, frame loop and renderer.
	for _, p := range a.pollers {
		a.wg.Add(1)

		go func(p poller.Poller) {
			defer a.wg.Done()

			poller.Run(ctx, a.log, p, &a.shutdown, a.health)
		}(p)
	}

	if a.loop != nil {
		a.wg.Add(1)

		go func() {
			defer a.wg.Done()

			if err := a.loop.Run(ctx, &a.shutdown); err != nil {
				a.log.WithError(err).Error("Paced loop stopped")
			}
		}()
	}

	if a.renderer != nil {
		a.wg.Add(1)

		go func() {
			defer a.wg.Done()

			a.renderer.Run(ctx, &a.shutdown)
		}()
	}

	a.wg.Add(1)

	go a.refreshMetrics(ctx)

	// 6. Start the report clock.
	if a.cfg.Report.Enabled {
		if err := a.startReports(ctx); err != nil {
			return err
		}
	}

	a.health.AgentStartDuration.WithLabelValues("total").Set(time.Since(started).Seconds())

	a.log.WithFields(logrus.Fields{
		"pollers":  len(a.pollers),
		"sinks":    len(a.sinks),
		"instance": a.instance,
	}).Info("Agent fully started")

	return nil
}

func (a *agent) startReports(ctx context.Context) error {
	reports, err := clock.NewReportClock(
		a.log, time.Unix(0, 0).UTC(), a.cfg.Report.Interval, reportWindowsPerEpoch,
	)
	if err != nil {
		return fmt.Errorf("creating report clock: %w", err)
	}

	a.reports = reports
	a.lastWindow.Store(-1)

	reports.OnWindowChanged(func(window uint64) {
		if a.shutdown.Load() || window == 0 {
			return
		}

		a.health.CurrentWindow.Set(float64(window))

		// Report the window that just closed.
		a.emitReport(window-1, reports.WindowStartTime(window-1))
	})

	if err := reports.Start(ctx); err != nil {
		return fmt.Errorf("starting report clock: %w", err)
	}

	return nil
}

func (a *agent) Stop() error {
	a.shutdown.Store(true)

	if a.cancel != nil {
		a.cancel()
	}

	a.wg.Wait()

	var errs []error

	// Stop in reverse order.
	if a.reports != nil {
		if err := a.reports.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping report clock: %w", err))
		}
	}

	if a.renderer != nil {
		if err := a.renderer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing publishers: %w", err))
		}
	}

	for _, s := range a.sinks {
		if err := s.Stop(); err != nil {
			a.log.WithError(err).WithField("sink", s.Name()).
				Error("Error stopping sink")
		}
	}

	if a.otlp != nil {
		if err := a.otlp.Stop(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}

	a.session.Detach()

	if err := a.health.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping health server: %w", err))
	}

	return errors.Join(errs...)
}

func (a *agent) attachLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(attachRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.shutdown.Load() {
				return
			}

			if err := a.session.Attach(ctx); err != nil {
				a.log.WithError(err).Debug("Session attach retry failed")

				continue
			}

			return
		}
	}
}

func (a *agent) refreshMetrics(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.shutdown.Load() {
				return
			}

			updateHealth(a.health, a.snapshot(0, time.Now()))
		}
	}
}

// snapshot builds a report of the current state.
func (a *agent) snapshot(window uint64, start time.Time) *sink.Report {
	r := sink.NewReport(
		window, start, a.session.Host().Hostname, a.instance, targetPID(a.sources),
	)

	collectRows(r, a.sources, a.cfg.Frames.Window)

	return r
}

func (a *agent) emitReport(window uint64, start time.Time) {
	if prev := a.lastWindow.Swap(int64(window)); prev >= 0 && window > uint64(prev)+1 {
		a.log.WithFields(logrus.Fields{
			"previous": prev,
			"window":   window,
		}).Debug("Report windows skipped")
	}

	now := time.Now()
	if prev := a.lastEmit.Swap(now.UnixNano()); prev > 0 {
		a.health.ReportWindowDuration.Observe(now.Sub(time.Unix(0, prev)).Seconds())
	}

	report := a.snapshot(window, start)

	for _, s := range a.sinks {
		s.HandleReport(report)
	}

	a.health.ReportsEmitted.Inc()
	a.health.ReportRows.Add(float64(len(report.Rows)))
}
