// Package poller runs the per-resource sampling loops. Each poller is the
// only writer of the windows and accumulators it owns; readers take
// copies through Snapshot.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfhud/internal/clock"
	"github.com/ethpandaops/perfhud/internal/stats"
)

// Poller samples one resource category.
type Poller interface {
	// Name identifies the poller in logs and metrics.
	Name() string
	// Interval is the sleep between polls.
	Interval() time.Duration
	// Poll takes one reading. Errors leave previous state in place.
	Poll(ctx context.Context) error
}

// Observer receives poll outcomes for health reporting.
type Observer interface {
	ObservePoll(poller string, took time.Duration, err error)
	ObserveDiscontinuity(poller, metric string)
}

type noopObserver struct{}

func (noopObserver) ObservePoll(string, time.Duration, error) {}
func (noopObserver) ObserveDiscontinuity(string, string)      {}

// Options are shared by every poller.
type Options struct {
	Clock    clock.Clock
	Policy   stats.SyncPolicy
	Capacity int
	Observer Observer
}

func (o Options) observer() Observer {
	if o.Observer == nil {
		return noopObserver{}
	}

	return o.Observer
}

func (o Options) window() *stats.Window {
	return stats.NewWindow(o.Clock, o.Capacity, o.Policy)
}

// Run polls p until ctx is cancelled or shutdown is set. Both are only
// checked at wake-up, so an in-flight Poll always completes.
func Run(
	ctx context.Context,
	log logrus.FieldLogger,
	p Poller,
	shutdown *atomic.Bool,
	obs Observer,
) {
	if obs == nil {
		obs = noopObserver{}
	}

	log = log.WithField("poller", p.Name())

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	log.WithField("interval", p.Interval()).Debug("Poller started")

	poll := func() {
		start := time.Now()
		err := p.Poll(ctx)

		obs.ObservePoll(p.Name(), time.Since(start), err)

		if err != nil {
			log.WithError(err).Debug("Poll failed")
		}
	}

	poll()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Poller stopped")

			return
		case <-ticker.C:
			if shutdown != nil && shutdown.Load() {
				log.Debug("Poller stopped")

				return
			}

			poll()
		}
	}
}

// smooth is the two-sample recursive average applied to percentages.
func smooth(prev, cur float64, primed bool) float64 {
	if !primed {
		return cur
	}

	return (prev + cur) / 2
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
