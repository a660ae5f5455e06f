// Package api implements the HTTP status & control surface (§4.8): a thin
// read-mostly wrapper over the on-disk status/schedule documents and the
// ledger/mapping stores, grounded on the teacher's api/tactics.go handler
// style (gin.Context, gin.H JSON envelopes, one handler method per route
// on a *Server receiver).
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tbotcore/internal/config"
	"tbotcore/internal/identity"
	"tbotcore/internal/lifecycle"
	"tbotcore/internal/logging"
	"tbotcore/internal/mapping"
	"tbotcore/internal/metrics"
	"tbotcore/internal/types"
)

// Server wraps a *gin.Engine with the dependencies every handler needs.
type Server struct {
	engine    *gin.Engine
	cfg       *config.Config
	resolver  *identity.Resolver
	identity  types.Identity4
	lifecycle *lifecycle.Manager
	mapping   *mapping.Store
	db        *sql.DB
}

// NewServer builds the route table. db may be nil if the caller hasn't
// opened the ledger yet — /ledger/balances returns 503 in that case.
func NewServer(cfg *config.Config, resolver *identity.Resolver, id types.Identity4, db *sql.DB) (*Server, error) {
	mapLive, err := resolver.MappingLivePath()
	if err != nil {
		return nil, err
	}
	mapVersions, err := resolver.MappingVersionsDir()
	if err != nil {
		return nil, err
	}
	mapAudit, err := resolver.MappingAuditPath()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		resolver:  resolver,
		identity:  id,
		lifecycle: lifecycle.NewManager(resolver),
		mapping:   mapping.NewStore(mapLive, mapVersions, mapAudit, id),
		db:        db,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(requestLoggerMiddleware(), gin.Recovery())

	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/schedule", s.handleSchedule)
	s.engine.GET("/ledger/balances", s.handleLedgerBalances)
	s.engine.GET("/mapping", s.handleMappingList)
	s.engine.POST("/mapping/assign", s.handleMappingAssign)
	s.engine.POST("/mapping/rollback", s.handleMappingRollback)
	s.engine.GET("/ws/status", s.handleWSStatus)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	return s, nil
}

// Run blocks serving HTTP on addr, matching the teacher's direct
// gin.Engine.Run usage (no separate http.Server wiring in the pack).
func (s *Server) Run(addr string) error {
	logging.Infof("api: listening on %s", addr)
	return s.engine.Run(addr)
}

// requestLoggerMiddleware logs each request at Info level with the
// structured zerolog logger and records its duration into the dedicated
// Prometheus registry, mirroring the teacher's RecordCycleDuration/
// RecordAICall pattern of pairing a histogram observation with a log line.
func requestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start).Seconds()
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), http.StatusText(status), elapsed)
		logging.Logger().Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("api: request")
	}
}
