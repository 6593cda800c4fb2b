package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// SessionWatch is an active read-only stream of a session's raw output.
type SessionWatch struct {
	conn      *websocket.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
	logger    *logger.Logger
}

// WatchSession opens a WebSocket stream of raw output chunks from a
// session. The handler is invoked from a single goroutine for every chunk,
// starting with a replay of the session's recent tail, until the session's
// shell exits or the watch is closed.
func (c *RemoteRuntime) WatchSession(ctx context.Context, session string, handler func(chunk []byte)) (*SessionWatch, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/watch_session?session=" + url.QueryEscape(session)

	var header http.Header
	if c.apiKey != "" {
		header = http.Header{"X-API-Key": []string{c.apiKey}}
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		// The server rejects unknown sessions with an error envelope
		// before upgrading; surface that as the typed error.
		if resp != nil && resp.StatusCode == types.ErrorStatus {
			defer func() { _ = resp.Body.Close() }()
			if body, readErr := readResponseBody(resp); readErr == nil {
				var envelope types.ErrorEnvelope
				if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil {
					return nil, types.DecodeError(envelope)
				}
			}
		}
		return nil, fmt.Errorf("failed to connect to session watch: %w", err)
	}

	c.logger.Info("watching session", zap.String("session", session), zap.String("url", wsURL))

	watch := &SessionWatch{
		conn:    conn,
		closeCh: make(chan struct{}),
		logger:  c.logger,
	}

	go watch.readLoop(handler)

	return watch, nil
}

// readLoop forwards output chunks to the handler until the stream ends.
func (w *SessionWatch) readLoop(handler func([]byte)) {
	defer w.Close()

	for {
		_, chunk, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Debug("session watch read error", zap.Error(err))
			}
			return
		}
		if len(chunk) == 0 {
			continue
		}
		handler(chunk)
	}
}

// Close closes the watch connection. Safe to call more than once.
func (w *SessionWatch) Close() {
	w.closeOnce.Do(func() {
		close(w.closeCh)
		if err := w.conn.Close(); err != nil {
			w.logger.Debug("failed to close session watch connection", zap.Error(err))
		}
	})
}

// Done returns a channel that is closed when the watch ends.
func (w *SessionWatch) Done() <-chan struct{} {
	return w.closeCh
}
