package overlay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// PublishObserver is told the outcome of every publish.
type PublishObserver interface {
	ObservePublish(publisher string, err error)
}

// Renderer periodically renders the overlay and publishes it.
type Renderer struct {
	log        logrus.FieldLogger
	formatter  *Formatter
	ctx        *Context
	publishers []Publisher
	slot       string
	interval   time.Duration
	observer   PublishObserver

	last atomic.Pointer[string]
}

// NewRenderer creates a renderer. obs may be nil.
func NewRenderer(
	log logrus.FieldLogger,
	cfg Config,
	formatter *Formatter,
	sources *Context,
	publishers []Publisher,
	obs PublishObserver,
) *Renderer {
	return &Renderer{
		log:        log.WithField("component", "renderer"),
		formatter:  formatter,
		ctx:        sources,
		publishers: publishers,
		slot:       cfg.Slot,
		interval:   cfg.Interval,
		observer:   obs,
	}
}

// Last returns the most recently rendered text.
func (r *Renderer) Last() string {
	if p := r.last.Load(); p != nil {
		return *p
	}

	return ""
}

// RenderOnce renders and publishes one overlay. It returns true when every
// publisher accepted the update.
func (r *Renderer) RenderOnce(ctx context.Context) bool {
	text := r.formatter.Render(r.ctx)
	r.last.Store(&text)

	ok := true

	for _, p := range r.publishers {
		err := p.Publish(ctx, r.slot, text)

		if r.observer != nil {
			r.observer.ObservePublish(p.Name(), err)
		}

		if err != nil {
			ok = false

			r.log.WithError(err).WithField("publisher", p.Name()).Debug("Publish failed")
		}
	}

	return ok
}

// Run renders until ctx is cancelled or shutdown is set.
func (r *Renderer) Run(ctx context.Context, shutdown *atomic.Bool) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.WithFields(logrus.Fields{
		"interval":   r.interval,
		"publishers": len(r.publishers),
	}).Info("Overlay renderer started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if shutdown != nil && shutdown.Load() {
				return
			}

			r.RenderOnce(ctx)
		}
	}
}

// Close closes every publisher.
func (r *Renderer) Close() error {
	var errs []error

	for _, p := range r.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
