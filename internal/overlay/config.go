package overlay

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// DefaultSlot is the overlay slot written when none is configured.
const DefaultSlot = "perfhud"

// TerminalConfig configures the terminal publisher.
type TerminalConfig struct {
	Enabled bool `yaml:"enabled"`
	// Color enables per-section colouring on a TTY.
	Color bool `yaml:"color"`
}

// WebsocketConfig configures the remote overlay publisher.
type WebsocketConfig struct {
	Enabled bool `yaml:"enabled"`
	// URL of the overlay server, ws:// or wss://.
	URL string `yaml:"url"`
	// HandshakeTimeout bounds each dial. Defaults to 5s.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// WriteTimeout bounds each publish. Defaults to 2s.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig configures the log publisher.
type LogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StoreConfig configures the HTTP served overlay store.
type StoreConfig struct {
	Enabled bool `yaml:"enabled"`
	// TTL after which an unrefreshed slot disappears. Defaults to 10s.
	TTL time.Duration `yaml:"ttl"`
}

// Config is the osd section.
type Config struct {
	// Enabled turns on rendering.
	Enabled bool `yaml:"enabled"`
	// Interval between renders. Defaults to 500ms.
	Interval time.Duration `yaml:"interval"`
	// Slot names the overlay text area. Defaults to DefaultSlot.
	Slot string `yaml:"slot"`
	// Title heads the overlay.
	Title string `yaml:"title"`
	// TimeFormat is a Go time layout. Defaults to 15:04:05.
	TimeFormat string `yaml:"time_format"`

	Terminal  TerminalConfig  `yaml:"terminal"`
	Websocket WebsocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
}

// DefaultConfig renders to the HTTP store every 500ms.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Interval:   500 * time.Millisecond,
		Slot:       DefaultSlot,
		Title:      "perfhud",
		TimeFormat: time.TimeOnly,
		Terminal: TerminalConfig{
			Color: true,
		},
		Websocket: WebsocketConfig{
			HandshakeTimeout: 5 * time.Second,
			WriteTimeout:     2 * time.Second,
		},
		Store: StoreConfig{
			Enabled: true,
			TTL:     10 * time.Second,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Interval <= 0 {
		return errors.New("osd.interval must be > 0")
	}

	if c.Slot == "" {
		return errors.New("osd.slot is required")
	}

	if c.Websocket.Enabled {
		u, err := url.Parse(c.Websocket.URL)
		if err != nil {
			return fmt.Errorf("osd.websocket.url: %w", err)
		}

		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("osd.websocket.url scheme must be ws or wss, got %q", u.Scheme)
		}
	}

	if c.Store.Enabled && c.Store.TTL <= 0 {
		return errors.New("osd.store.ttl must be > 0")
	}

	return nil
}
