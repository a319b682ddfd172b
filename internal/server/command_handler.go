package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"liquefier/internal/command"
	"liquefier/internal/status"
	"liquefier/pkg/log"
)

const commandStatusKey = "command_status"

type CommandRequest struct {
	Id      string          `json:"id"`
	Command string          `json:"command" binding:"required,cmdname"`
	Args    json.RawMessage `json:"args,omitempty"`
}

type StatusResponse struct {
	Last    *status.Run   `json:"last,omitempty"`
	History []*status.Run `json:"history,omitempty"`
}

// handleCommand runs a command and answers with the command response. The
// HTTP code follows the command status.
func (s *Server) handleCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Set(commandStatusKey, command.StatusRejected.String())
		c.JSON(http.StatusBadRequest, command.Response{
			Id:      req.Id,
			Status:  command.StatusRejected,
			Message: fmt.Sprintf("%v: %v", command.ErrMalformed, err),
		})
		return
	}
	if req.Id == "" {
		req.Id = c.GetString(log.CtxRequestId)
	}

	resp := s.handler.Handle(c, &command.Request{
		Id:      req.Id,
		Command: req.Command,
		Args:    req.Args,
	})
	c.Set(commandStatusKey, resp.Status.String())
	c.JSON(resp.Status.HTTPCode(), resp)
}

func (s *Server) handleListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, s.handler.Commands())
}

// handleStatus reports the last successful run and, with ?history=N, the N newest runs.
func (s *Server) handleStatus(c *gin.Context) {
	if s.runs == nil {
		s.writeError(c, http.StatusNotFound, status.ErrNoRun)
		return
	}
	var resp StatusResponse
	last, err := s.runs.Last()
	if err != nil && !errors.Is(err, status.ErrNoRun) {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	resp.Last = last

	if h := c.Query("history"); h != "" {
		limit, err := strconv.Atoi(h)
		if err != nil || limit < 0 {
			s.writeError(c, http.StatusBadRequest, fmt.Errorf("invalid history %q", h))
			return
		}
		resp.History, err = s.runs.History(limit)
		if err != nil {
			s.writeError(c, http.StatusInternalServerError, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleChart serves the rendered chart document.
func (s *Server) handleChart(c *gin.Context) {
	path := s.conf.Output.ChartPath
	if _, err := os.Stat(path); err != nil {
		s.writeError(c, http.StatusNotFound, fmt.Errorf("chart not rendered yet"))
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.File(path)
}
