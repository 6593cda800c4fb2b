package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// writeError transfers a runtime error to the client as an envelope.
func (s *Server) writeError(c *gin.Context, err error) {
	s.logger.Debug("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(types.ErrorStatus, types.EncodeError(err))
}

// badRequest reports a malformed request body.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": msg})
}

func (s *Server) handleIsAlive(c *gin.Context) {
	c.JSON(http.StatusOK, s.rt.IsAlive(c.Request.Context()))
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req types.CreateBashSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.rt.CreateSession(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRunInSession(c *gin.Context) {
	var action types.BashAction
	if err := c.ShouldBindJSON(&action); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	obs, err := s.rt.RunInSession(c.Request.Context(), action)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, obs)
}

func (s *Server) handleCloseSession(c *gin.Context) {
	var req types.CloseBashSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.rt.CloseSession(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExecute(c *gin.Context) {
	var cmd types.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.rt.Execute(c.Request.Context(), cmd)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleReadFile(c *gin.Context) {
	var req types.ReadFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.rt.ReadFile(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleWriteFile(c *gin.Context) {
	var req types.WriteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.rt.WriteFile(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file field")
		return
	}
	targetPath := c.PostForm("target_path")
	if targetPath == "" {
		badRequest(c, "target_path is required")
		return
	}
	unzip, _ := strconv.ParseBool(c.DefaultPostForm("unzip", "false"))

	src, err := fileHeader.Open()
	if err != nil {
		s.writeError(c, types.NewFileOpError(err))
		return
	}
	defer src.Close()

	resp, err := s.rt.Upload(c.Request.Context(), src, targetPath, unzip)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClose(c *gin.Context) {
	if err := s.rt.Close(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.CloseResponse{})
}
