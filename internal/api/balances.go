package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tbotcore/internal/ledger"
	"tbotcore/internal/metrics"
)

// handleLedgerBalances computes C6 account balances as of a point in time,
// optionally scoped to one account and one window start.
func (s *Server) handleLedgerBalances(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger database not open"})
		return
	}

	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be RFC3339"})
			return
		}
		asOf = parsed
	}
	var windowStart *time.Time
	if raw := c.Query("window_start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window_start must be RFC3339"})
			return
		}
		windowStart = &parsed
	}

	balances, err := ledger.CalculateAccountBalances(c.Request.Context(), s.db, asOf, windowStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	wantAccount := c.Query("account")
	out := make(gin.H, len(balances))
	for account, bal := range balances {
		if wantAccount != "" && account != wantAccount {
			continue
		}
		out[account] = gin.H{
			"opening_balance": bal.OpeningBalance,
			"debits":          bal.Debits,
			"credits":         bal.Credits,
			"closing_balance": bal.ClosingBalance,
		}
		metrics.SetAccountBalance(s.identity.String(), account, bal.ClosingBalance.InexactFloat64())
	}
	c.JSON(http.StatusOK, gin.H{"as_of": asOf, "accounts": out})
}
