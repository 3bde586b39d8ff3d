package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/netrun/flowengine/internal/registry"
	"github.com/netrun/flowengine/pkg/models"
)

// startRequest is spec §6's POST start body:
// {workflow_id, overrides: {variables?, error_handling?, dry_run?}}.
type startRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
	Overrides  struct {
		Variables     map[string]interface{}  `json:"variables,omitempty"`
		ErrorHandling models.ErrorHandlingMode `json:"error_handling,omitempty"`
		DryRun        bool                     `json:"dry_run,omitempty"`
	} `json:"overrides"`
}

// handleStart implements POST /api/v1/executions.
func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	exec, err := s.registry.Start(c.Request.Context(), req.WorkflowID, registry.StartOverrides{
		Variables:     req.Overrides.Variables,
		ErrorHandling: req.Overrides.ErrorHandling,
		DryRun:        req.Overrides.DryRun,
	})
	if err != nil {
		s.log.Error("failed to start execution", "error", err, "workflow_id", req.WorkflowID)
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"execution_id": exec.ID})
}

// handleGet implements GET /api/v1/executions/:id (spec §6 "GET status").
func (s *Server) handleGet(c *gin.Context) {
	executionID := c.Param("id")
	exec, err := s.registry.Get(c.Request.Context(), executionID)
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			respondError(c, http.StatusNotFound, "execution not found")
			return
		}
		s.log.Error("failed to get execution", "error", err, "execution_id", executionID)
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, exec)
}

// handleList implements GET /api/v1/executions (spec §4.8 "list()").
func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

// controlRequest is spec §6's POST control body.
type controlRequest struct {
	Command string `json:"command" binding:"required"`
}

// handleControl implements POST /api/v1/executions/:id/control.
func (s *Server) handleControl(c *gin.Context) {
	executionID := c.Param("id")

	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.SendControl(executionID, req.Command); err != nil {
		switch {
		case errors.Is(err, models.ErrRunNotFound):
			respondError(c, http.StatusNotFound, "execution not found")
		case errors.Is(err, models.ErrNotRunning):
			respondError(c, http.StatusConflict, "execution is not running")
		default:
			respondError(c, http.StatusBadRequest, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
