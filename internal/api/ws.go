package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tbotcore/internal/logging"
	"tbotcore/internal/metrics"
	"tbotcore/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWSStatus upgrades to a websocket and pushes status.json's bytes
// whenever the lifecycle state changes, so the UI can subscribe instead of
// polling GET /status (§4.8).
func (s *Server) handleWSStatus(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	metrics.WebsocketClientsConnected.Inc()
	defer metrics.WebsocketClientsConnected.Dec()

	path, err := s.resolver.StatusPath()
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastState string
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			state, err := s.lifecycle.Get(types.StateIdle)
			if err != nil {
				continue
			}
			if string(state) == lastState {
				continue
			}
			lastState = string(state)

			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
