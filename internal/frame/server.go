package frame

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfhud/internal/clock"
)

// maxMessageSize bounds one frame report.
const maxMessageSize = 512

// Message is one frame report sent by a hooked process.
type Message struct {
	FrameTimeMs float64 `json:"frame_time_ms"`
	API         string  `json:"api,omitempty"`
}

// Server accepts frame reports over websocket connections and records
// them into a Tracker.
type Server struct {
	log      logrus.FieldLogger
	clk      clock.Clock
	tracker  *Tracker
	upgrader websocket.Upgrader

	connections atomic.Int64
	malformed   atomic.Uint64
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a frame ingest handler.
func NewServer(log logrus.FieldLogger, clk clock.Clock, tracker *Tracker) *Server {
	return &Server{
		log:     log.WithField("component", "frame_server"),
		clk:     clk,
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Producers are local processes, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Connections returns the number of open producer connections.
func (s *Server) Connections() int64 {
	return s.connections.Load()
}

// Malformed returns the number of messages that failed to decode.
func (s *Server) Malformed() uint64 {
	return s.malformed.Load()
}

// ServeHTTP upgrades the request and reads frame reports until the
// producer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("Frame producer upgrade failed")

		return
	}

	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMessageSize)

	s.connections.Add(1)
	defer s.connections.Add(-1)

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Info("Frame producer connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("Frame producer read failed")
			}

			break
		}

		var msg Message

		if err := json.Unmarshal(data, &msg); err != nil {
			s.malformed.Add(1)
			log.WithError(err).Debug("Malformed frame report")

			continue
		}

		if msg.API != "" {
			s.tracker.SetAPI(msg.API)
		}

		s.tracker.Record(msg.FrameTimeMs, s.clk.Now())
	}

	log.Info("Frame producer disconnected")
}
