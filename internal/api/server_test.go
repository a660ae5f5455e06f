package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tbotcore/internal/config"
	"tbotcore/internal/identity"
	"tbotcore/internal/types"
)

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	id := types.Identity4{Entity: "ACME", Jurisdiction: "US", Broker: "ALPACA", BotID: "BOT1"}
	resolver, err := identity.New(t.TempDir(), id)
	require.NoError(t, err)
	if cfg == nil {
		cfg = &config.Config{}
	}
	srv, err := NewServer(cfg, resolver, id, nil)
	require.NoError(t, err)
	return srv
}

func TestHandleStatusMissingFileReturnsEmptyObject(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{}`, rec.Body.String())
}

func TestHandleScheduleMissingReturns404(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/schedule", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleLedgerBalancesWithoutDBReturns503(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/ledger/balances", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleMappingListEmptyReturnsEmptyRows(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/mapping", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rows []any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Rows)
}

func TestHandleMappingAssignRequiresOperatorPassphrase(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	srv := newTestServer(t, &config.Config{OperatorPassphraseHash: string(hash)})

	payload := []byte(`{"debit_account":"1000","credit_account":"4000","user":"ops"}`)

	req := httptest.NewRequest(http.MethodPost, "/mapping/assign", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/mapping/assign", bytes.NewReader(payload))
	req.Header.Set("X-Operator-Passphrase", "wrong")
	rec = httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/mapping/assign", bytes.NewReader(payload))
	req.Header.Set("X-Operator-Passphrase", "correct-horse")
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMappingAssignWithoutConfiguredGateReturns503(t *testing.T) {
	srv := newTestServer(t, nil)
	payload := []byte(`{"debit_account":"1000","credit_account":"4000","user":"ops"}`)
	req := httptest.NewRequest(http.MethodPost, "/mapping/assign", bytes.NewReader(payload))
	req.Header.Set("X-Operator-Passphrase", "anything")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
