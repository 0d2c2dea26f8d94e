// Package ws streams restore progress to connected clients (the shell's
// progress window, mainly) over a websocket.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/domain/progress"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// The status server binds to loopback; any local client may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades connections and forwards progress updates.
type Handler struct {
	tracker *progress.Tracker
	log     *logging.Logger
}

// NewHandler creates a websocket handler over the progress tracker.
func NewHandler(tracker *progress.Tracker, log *logging.Logger) *Handler {
	return &Handler{tracker: tracker, log: log.Named("ws")}
}

// HandleConnection upgrades and serves one client until it disconnects.
// The current snapshot is sent first, then live updates.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.tracker.Subscribe()
	defer cancel()

	if err := h.send(conn, envelope{Type: "snapshot", Updates: h.tracker.Snapshot()}); err != nil {
		return
	}

	// Drain client frames so close and pong handling work; content is
	// ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case u := <-updates:
			if err := h.send(conn, envelope{Type: "update", Updates: []progress.Update{u}}); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type envelope struct {
	Type    string            `json:"type"`
	Updates []progress.Update `json:"updates"`
}

func (h *Handler) send(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
