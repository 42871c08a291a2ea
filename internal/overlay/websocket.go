package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Update is the message sent to a remote overlay server.
type Update struct {
	Slot string `json:"slot"`
	Text string `json:"text"`
}

// WebsocketPublisher sends overlay updates to a remote server. A failed
// connection is dropped and redialled on the next publish.
type WebsocketPublisher struct {
	log    logrus.FieldLogger
	cfg    WebsocketConfig
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Publisher = (*WebsocketPublisher)(nil)

// NewWebsocketPublisher creates a publisher. No connection is made until
// the first publish.
func NewWebsocketPublisher(log logrus.FieldLogger, cfg WebsocketConfig) *WebsocketPublisher {
	return &WebsocketPublisher{
		log: log.WithField("publisher", "websocket"),
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

func (p *WebsocketPublisher) Name() string { return "websocket" }

func (p *WebsocketPublisher) Publish(ctx context.Context, slot, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, resp, err := p.dialer.DialContext(ctx, p.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		if err != nil {
			return fmt.Errorf("dialing overlay server: %w", err)
		}

		p.conn = conn
		p.log.WithField("url", p.cfg.URL).Info("Connected to overlay server")
	}

	if p.cfg.WriteTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	}

	if err := p.conn.WriteJSON(Update{Slot: slot, Text: text}); err != nil {
		_ = p.conn.Close()
		p.conn = nil

		return fmt.Errorf("writing overlay update: %w", err)
	}

	return nil
}

// Close sends a close frame and drops the connection.
func (p *WebsocketPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}

	_ = p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	err := p.conn.Close()
	p.conn = nil

	return err
}
