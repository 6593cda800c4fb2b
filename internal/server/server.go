// Package server provides the HTTP surface of the runtime: JSON
// endpoints for sessions, one-shot commands and file transfer, plus a
// WebSocket stream of live session output.
package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/SWE-agent/SWE-ReX/internal/common/httpmw"
	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/runtime"
)

// Server is the HTTP API server in front of a runtime.
type Server struct {
	rt     *runtime.Runtime
	apiKey string
	logger *logger.Logger
	router *gin.Engine

	upgrader websocket.Upgrader
}

// New creates the API server. An empty apiKey disables authentication.
func New(rt *runtime.Runtime, apiKey string, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		rt:     rt,
		apiKey: apiKey,
		logger: log.WithComponent("api-server"),
		router: gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Watchers connect from arbitrary origins
			},
		},
	}

	s.router.Use(gin.Recovery())
	s.router.Use(httpmw.RequestLogger(s.logger, "swerex-remote"))
	s.router.Use(httpmw.OtelTracing("swerex-remote"))
	s.router.Use(s.requireAPIKey())

	s.setupRoutes()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/is_alive", s.handleIsAlive)

	s.router.POST("/create_session", s.handleCreateSession)
	s.router.POST("/run_in_session", s.handleRunInSession)
	s.router.POST("/close_session", s.handleCloseSession)
	s.router.GET("/watch_session", s.handleWatchSession)

	s.router.POST("/execute", s.handleExecute)

	s.router.POST("/read_file", s.handleReadFile)
	s.router.POST("/write_file", s.handleWriteFile)
	s.router.POST("/upload", s.handleUpload)

	s.router.POST("/close", s.handleClose)
}

// requireAPIKey rejects requests whose X-API-Key header does not match
// the configured key. With no key configured every request passes.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.Next()
			return
		}
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid api key"})
			return
		}
		c.Next()
	}
}
