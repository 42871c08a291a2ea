package frame

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfhud/internal/clock"
	"github.com/ethpandaops/perfhud/internal/pacer"
)

// PacedLoop is a synthetic present loop. Each pacer interval counts as one
// frame whose time is the measured effective interval.
type PacedLoop struct {
	log     logrus.FieldLogger
	clk     clock.Clock
	pacer   *pacer.Pacer
	tracker *Tracker
}

// NewPacedLoop creates a loop presenting at rate frames per second.
func NewPacedLoop(
	log logrus.FieldLogger,
	clk clock.Clock,
	tracker *Tracker,
	rate float64,
) *PacedLoop {
	return &PacedLoop{
		log:     log.WithField("component", "paced_loop"),
		clk:     clk,
		pacer:   pacer.New(clk, pacer.FromRate(rate)),
		tracker: tracker,
	}
}

// Pacer exposes the loop's pacer.
func (l *PacedLoop) Pacer() *pacer.Pacer {
	return l.pacer
}

// Run presents frames until ctx is cancelled or shutdown is set.
func (l *PacedLoop) Run(ctx context.Context, shutdown *atomic.Bool) error {
	l.log.WithField("target_ms", l.pacer.Target()*1000).Info("Paced loop started")

	for {
		if err := l.pacer.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		if shutdown != nil && shutdown.Load() {
			return nil
		}

		if l.pacer.Frames() == 0 {
			continue
		}

		l.tracker.Record(l.pacer.EffectiveInterval()*1000, l.clk.Now())
	}
}
