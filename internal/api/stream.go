package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// handleStream upgrades to a websocket and pushes committed events as JSON messages.
// ?session_id= restricts the stream to one session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID != "" {
		if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
			s.writeError(w, r, err)

			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))

		return
	}

	events, unsubscribe := s.service.Subscribe()

	s.metrics.StreamClients.Inc()
	s.logger.Debug("Stream client connected", zap.String("session_id", sessionID))

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, events, sessionID, done)

	unsubscribe()
	s.metrics.StreamClients.Dec()
	s.logger.Debug("Stream client disconnected", zap.String("session_id", sessionID))
}

// readPump discards client messages and closes done once the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, events <-chan types.Event, sessionID string, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if sessionID != "" && event.SessionID != sessionID {
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
