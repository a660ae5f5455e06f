package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"tbotcore/internal/mapping"
)

// handleMappingList returns every currently-active COA mapping rule.
func (s *Server) handleMappingList(c *gin.Context) {
	rows, err := s.mapping.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// requireOperator enforces the bcrypt passphrase gate (§1.2) that guards
// the mapping table's privileged mutations. The request must carry the
// plaintext passphrase in the X-Operator-Passphrase header; it is compared
// against the configured bcrypt hash, never logged or echoed back.
func (s *Server) requireOperator(c *gin.Context) bool {
	if s.cfg.OperatorPassphraseHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operator gate not configured"})
		return false
	}
	passphrase := c.GetHeader("X-Operator-Passphrase")
	if passphrase == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Operator-Passphrase header required"})
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorPassphraseHash), []byte(passphrase)); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid operator passphrase"})
		return false
	}
	return true
}

type assignRequest struct {
	Broker        string `json:"broker"`
	Type          string `json:"type"`
	Subtype       string `json:"subtype"`
	Description   string `json:"description"`
	DebitAccount  string `json:"debit_account" binding:"required"`
	CreditAccount string `json:"credit_account" binding:"required"`
	User          string `json:"user" binding:"required"`
	Reason        string `json:"reason"`
}

// handleMappingAssign appends a new active rule version, operator-gated.
func (s *Server) handleMappingAssign(c *gin.Context) {
	if !s.requireOperator(c) {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := mapping.AssignRule{
		Match: mapping.Match{
			Broker: req.Broker, Type: req.Type, Subtype: req.Subtype, Description: req.Description,
		},
		DebitAccount:  req.DebitAccount,
		CreditAccount: req.CreditAccount,
	}
	row, versionID, err := s.mapping.Assign(rule, req.User, req.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"row": row, "version_id": versionID})
}

type rollbackRequest struct {
	VersionID int64 `json:"version_id" binding:"required"`
}

// handleMappingRollback restores the live table to a prior snapshot,
// operator-gated.
func (s *Server) handleMappingRollback(c *gin.Context) {
	if !s.requireOperator(c) {
		return
	}
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mapping.Rollback(req.VersionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rolled back", "version_id": req.VersionID})
}
