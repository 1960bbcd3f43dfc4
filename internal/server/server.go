// Package server exposes health, metrics and queue inspection over HTTP while
// the workers run.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/domain"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

const (
	healthCheckTimeout = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// Pinger checks store connectivity. *sqlx.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueInspector reads queue state.
type QueueInspector interface {
	Stats(ctx context.Context) (*database.QueueStats, error)
	ListLocked(ctx context.Context, olderThan time.Duration) ([]domain.IngestionEntry, error)
}

// RecordReader looks up finished records.
type RecordReader interface {
	Get(ctx context.Context, domainName string) (*domain.DomainRecord, error)
}

// Deps are the collaborators the routes read from. Metrics may be nil.
type Deps struct {
	DB      Pinger
	Queue   QueueInspector
	Records RecordReader
	Metrics http.Handler
	Version string
}

// Server is the ops HTTP server.
type Server struct {
	router  *gin.Engine
	server  *http.Server
	log     logger.Logger
	started time.Time
	deps    Deps
}

// New builds the router and the http.Server.
func New(cfg config.ServerConfig, debug bool, deps Deps, log logger.Logger) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(recovery(log), requestID(), requestLogger(log))

	s := &Server{
		router:  router,
		log:     log,
		started: time.Now(),
		deps:    deps,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	v1 := s.router.Group("/api/v1")
	v1.GET("/queue/stats", s.queueStats)
	v1.GET("/queue/locks", s.queueLocks)
	v1.GET("/domains/:name", s.getDomain)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", logger.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
