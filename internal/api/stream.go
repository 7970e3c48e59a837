package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/tailgame/pkg/logger"
)

// Timing of the dashboard stream
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	PingInterval = 30 * time.Second
)

// Stream pushes every published dashboard to websocket clients
// ⭐ SSOT: engine.Subscribe -> Stream -> browser
type Stream struct {
	engine   Engine
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.Mutex
	clients int
}

// NewStream creates a dashboard stream
func NewStream(engine Engine, log *logger.Logger) *Stream {
	return &Stream{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
		logger: log,
	}
}

// Clients returns the number of connected clients
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// ServeHTTP upgrades the request and streams dashboards until the client leaves
// GET /ws
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.track(1)
	defer s.track(-1)

	updates, cancel := s.engine.Subscribe()
	defer cancel()

	// the reader only handles control frames and notices the close
	done := make(chan struct{})
	go s.readLoop(conn, done)

	if err := s.write(conn, s.engine.Latest()); err != nil {
		return
	}

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case dash, ok := <-updates:
			if !ok {
				return
			}
			if err := s.write(conn, dash); err != nil {
				s.logger.WithError(err).Debug("Websocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Stream) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) write(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Stream) track(delta int) {
	s.mu.Lock()
	s.clients += delta
	n := s.clients
	s.mu.Unlock()
	s.logger.WithField("clients", n).Debug("Websocket clients changed")
}
