package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tbotcore/internal/scheduler"
)

// handleSchedule serves today's computed schedule.json.
func (s *Server) handleSchedule(c *gin.Context) {
	path, err := s.resolver.SchedulePath()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sched, err := scheduler.ReadSchedule(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule not yet computed for today"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trading_date":             sched.TradingDate,
		"created_at_utc":           sched.CreatedAtUTC,
		"open_utc":                 sched.OpenUTC,
		"mid_utc":                  sched.MidUTC,
		"close_utc":                sched.CloseUTC,
		"holdings_open_utc":        sched.HoldingsOpenUTC,
		"holdings_mid_utc":         sched.HoldingsMidUTC,
		"universe_utc":             sched.UniverseUTC,
		"holdings_after_open_min":  sched.HoldingsAfterOpenMin,
		"holdings_after_mid_min":   sched.HoldingsAfterMidMin,
		"universe_after_close_min": sched.UniverseAfterCloseMin,
		"market_close_utc_hint":    sched.MarketCloseUTCHint,
	})
}
