package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/ethwallclock"
	"github.com/sirupsen/logrus"
)

// WindowChangedFunc is called when the report clock advances to a new
// window.
type WindowChangedFunc func(window uint64)

// ReportClock divides wall-clock time into fixed windows counted from a
// genesis instant. Reports are emitted at window boundaries so that
// multiple agents produce aligned rows.
type ReportClock interface {
	// Start begins delivering window change callbacks.
	Start(ctx context.Context) error
	// Stop terminates the clock.
	Stop() error
	// CurrentWindow returns the current window number.
	CurrentWindow() uint64
	// WindowStartTime returns the wall-clock start of the given window.
	WindowStartTime(window uint64) time.Time
	// MillisIntoWindow returns the milliseconds elapsed in the current
	// window.
	MillisIntoWindow() uint64
	// Duration returns the window length.
	Duration() time.Duration
	// OnWindowChanged registers a callback for window transitions.
	OnWindowChanged(fn WindowChangedFunc)
}

type reportClock struct {
	log             logrus.FieldLogger
	genesis         time.Time
	window          time.Duration
	windowsPerEpoch uint64
	wallclock       *ethwallclock.EthereumBeaconChain

	mu        sync.RWMutex
	callbacks []WindowChangedFunc
}

// NewReportClock creates a report clock. The genesis is truncated to the
// window length so that windows start on round wall-clock instants.
func NewReportClock(
	log logrus.FieldLogger,
	genesis time.Time,
	window time.Duration,
	windowsPerEpoch uint64,
) (ReportClock, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be > 0")
	}

	if windowsPerEpoch == 0 {
		return nil, fmt.Errorf("windowsPerEpoch must be > 0")
	}

	genesis = genesis.Truncate(window)

	return &reportClock{
		log:             log.WithField("component", "report_clock"),
		genesis:         genesis,
		window:          window,
		windowsPerEpoch: windowsPerEpoch,
		wallclock: ethwallclock.NewEthereumBeaconChain(
			genesis, window, windowsPerEpoch,
		),
		callbacks: make([]WindowChangedFunc, 0, 2),
	}, nil
}

func (c *reportClock) Start(_ context.Context) error {
	// ethwallclock invokes this on its own goroutine.
	c.wallclock.OnSlotChanged(func(slot ethwallclock.Slot) {
		n := slot.Number()

		c.log.WithField("window", n).Trace("Report window changed")

		c.mu.RLock()
		callbacks := c.callbacks
		c.mu.RUnlock()

		for _, fn := range callbacks {
			fn(n)
		}
	})

	c.log.WithFields(logrus.Fields{
		"genesis": c.genesis,
		"window":  c.window,
	}).Info("Report clock started")

	return nil
}

func (c *reportClock) Stop() error {
	if c.wallclock != nil {
		c.wallclock.Stop()
	}

	return nil
}

func (c *reportClock) CurrentWindow() uint64 {
	slot := c.wallclock.Slots().Current()

	return slot.Number()
}

func (c *reportClock) WindowStartTime(window uint64) time.Time {
	return c.genesis.Add(time.Duration(window) * c.window)
}

func (c *reportClock) MillisIntoWindow() uint64 {
	slot := c.wallclock.Slots().Current()
	elapsed := time.Since(slot.TimeWindow().Start())

	return uint64(elapsed.Milliseconds())
}

func (c *reportClock) Duration() time.Duration {
	return c.window
}

func (c *reportClock) OnWindowChanged(fn WindowChangedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callbacks = append(c.callbacks, fn)
}
