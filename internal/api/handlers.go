package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth reports process liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

// handleGetPerformance returns the authoritative day state.
func (s *Server) handleGetPerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.GetPerformanceState())
}

// handleGetRiskPolicy returns the live tuner policy.
func (s *Server) handleGetRiskPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, s.tuner.Snapshot())
}

// handleGetStatus reports the coordinator's halt flag and in-flight cycles.
func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"halted":      s.coord.Halted(),
		"in_flight":   s.coord.InFlight(),
		"ws_clients":  s.hub.ClientCount(),
		"performance": s.coord.GetPerformanceState(),
	})
}

// haltRequest is the manual halt payload.
type haltRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// handleHalt trips the circuit breaker manually.
func (s *Server) handleHalt(c *gin.Context) {
	var req haltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	s.coord.HaltManually(req.Reason)
	c.JSON(http.StatusOK, gin.H{
		"halted": true,
		"reason": req.Reason,
	})
}

// handleReset clears the halt and starts a fresh trading day.
func (s *Server) handleReset(c *gin.Context) {
	s.coord.Reset()
	c.JSON(http.StatusOK, gin.H{
		"halted":      false,
		"performance": s.coord.GetPerformanceState(),
	})
}
