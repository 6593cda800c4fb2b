package server

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// watchBufferSize is the per-watcher chunk queue. Watchers that fall
// behind lose chunks rather than slowing the session down.
const watchBufferSize = 256

// handleWatchSession streams raw session output over a WebSocket as
// binary frames. It is read-only: client frames are discarded, and
// attaching or detaching never affects the command lifecycle.
func (s *Server) handleWatchSession(c *gin.Context) {
	name := c.DefaultQuery("session", types.DefaultSessionName)
	sess, err := s.rt.Session(name)
	if err != nil {
		s.writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close watch websocket", zap.Error(err))
		}
	}()

	s.logger.Info("session watch connected", zap.String("session", name))

	ch := make(chan []byte, watchBufferSize)
	sess.Subscribe(ch)
	defer sess.Unsubscribe(ch)

	// Replay the recent tail so a watcher joining mid-command has
	// context.
	if recent := sess.Recent(); len(recent) > 0 {
		if err := conn.WriteMessage(websocket.BinaryMessage, recent); err != nil {
			return
		}
	}

	// Reader goroutine: its only job is to surface client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-sess.Done():
			return
		case chunk := <-ch:
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		}
	}
}
