package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tgwall/internal/scheduler"
	"tgwall/internal/storage"
	"tgwall/internal/wallpaper"

	"github.com/gin-gonic/gin"
)

// Server exposes a read-only status API for the daemon: last tick, apply
// history and the weather stats counters.
type Server struct {
	router    *gin.Engine
	server    *http.Server
	scheduler *scheduler.Scheduler
	db        *storage.Database
	stats     *wallpaper.Stats
	port      int
}

type ServerConfig struct {
	Port      int
	Scheduler *scheduler.Scheduler
	Database  *storage.Database
	Stats     *wallpaper.Stats
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		scheduler: cfg.Scheduler,
		db:        cfg.Database,
		stats:     cfg.Stats,
		port:      cfg.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.statusHandler)
		api.GET("/history", s.historyHandler)
		api.GET("/stats", s.statsHandler)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) statusHandler(c *gin.Context) {
	status := s.scheduler.Status()
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"message": "no tick completed yet"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) historyHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history database disabled"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	records, err := s.db.GetRecent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Load())
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
