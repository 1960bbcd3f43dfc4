package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/domain"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
	Store   string `json:"store"`
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:  "healthy",
		Version: s.deps.Version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Store:   "ok",
	}
	code := http.StatusOK
	if err := s.deps.DB.PingContext(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Store = err.Error()
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Server) queueStats(c *gin.Context) {
	stats, err := s.deps.Queue.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) queueLocks(c *gin.Context) {
	var olderThan time.Duration
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be a duration such as 30m"})
			return
		}
		olderThan = d
	}

	entries, err := s.deps.Queue.ListLocked(c.Request.Context(), olderThan)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list locks"})
		return
	}
	if entries == nil {
		entries = []domain.IngestionEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"locks": entries, "count": len(entries)})
}

func (s *Server) getDomain(c *gin.Context) {
	name, err := domain.NormalizeName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.deps.Records.Get(c.Request.Context(), name)
	switch {
	case errors.Is(err, database.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read domain"})
	default:
		c.JSON(http.StatusOK, record)
	}
}
