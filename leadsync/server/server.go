// Package server exposes the HTTP surface of the sync daemon: the
// Marketo webhook endpoint and the admin sync endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/leadsync/services"
	"github.com/gigaom/marketo-sync/pkg/bus"
	"github.com/gigaom/marketo-sync/pkg/config"
	"github.com/gigaom/marketo-sync/pkg/store"
)

// Server is the HTTP server for webhook and admin requests.
type Server struct {
	router     *gin.Engine
	cfg        *config.Config
	users      store.UserStore
	records    store.SyncRecordStore
	sync       *services.Sync
	bus        *bus.Bus
	logger     *zap.Logger
	httpServer *http.Server
}

// New creates the HTTP server and registers its routes.
func New(
	cfg *config.Config,
	users store.UserStore,
	records store.SyncRecordStore,
	syncSvc *services.Sync,
	b *bus.Bus,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		cfg:     cfg,
		users:   users,
		records: records,
		sync:    syncSvc,
		bus:     b,
		logger:  logger,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(logger))

	s.router.GET("/health", s.handleHealth)
	s.router.POST("/webhook/marketo", s.handleWebhook)
	s.router.POST("/admin/users/:id/sync", s.handleAdminSync)
	s.router.GET("/admin/users/:id/sync", s.handleAdminSyncStatus)

	return s
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving on the configured address and blocks until the
// server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.ListenAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// requestLogger attaches a correlation id to every request and logs
// completion with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		logger.Info("request completed",
			zap.String("correlation_id", correlationID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
