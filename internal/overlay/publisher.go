package overlay

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Publisher delivers rendered overlay text to one destination.
type Publisher interface {
	// Name identifies the publisher in logs and metrics.
	Name() string
	// Publish replaces the text shown in slot.
	Publish(ctx context.Context, slot, text string) error
	// Close releases the destination.
	Close() error
}

// LogPublisher writes the overlay to the logger at debug level.
type LogPublisher struct {
	log logrus.FieldLogger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a log publisher.
func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log.WithField("publisher", "log")}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(_ context.Context, slot, text string) error {
	p.log.WithField("slot", slot).Debug("\n" + text)

	return nil
}

func (p *LogPublisher) Close() error { return nil }
