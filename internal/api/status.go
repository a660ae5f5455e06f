package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// handleStatus serves the UI-facing status.json verbatim, the same
// read-merge-write document scheduler.WriteStatus maintains on disk —
// this endpoint only reads it.
func (s *Server) handleStatus(c *gin.Context) {
	path, err := s.resolver.StatusPath()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
