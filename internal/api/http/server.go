// Package http serves the loopback status API: engine state, restore
// progress, manual restore controls and Prometheus metrics.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/api/middleware"
	"github.com/thechief/rememberd/internal/api/ws"
	"github.com/thechief/rememberd/internal/infrastructure/logging"
)

// Server wraps the gin router and its http.Server.
type Server struct {
	srv *http.Server
	log *logging.Logger
}

// NewServer builds the status server.
func NewServer(addr string, handlers *Handlers, stream *ws.Handler, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	router.GET("/progress", handlers.Progress)

	router.GET("/apps", handlers.ListApps)
	router.POST("/apps/:class/launch", handlers.LaunchApp)
	router.GET("/apps/:class/expected", handlers.ExpectedInstances)

	router.POST("/restore", handlers.StartRestore)
	router.POST("/restore/finalize", handlers.FinalizeRestore)
	router.POST("/cleanup", handlers.Cleanup)
	router.POST("/assignments/reset", handlers.ResetAssignments)

	router.GET("/prefs", handlers.GetPrefs)
	router.PUT("/prefs", handlers.SetPrefs)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", stream.HandleConnection)

	return &Server{
		srv: &http.Server{Addr: addr, Handler: router},
		log: log.Named("http"),
	}
}

// Run serves until Shutdown. Blocks.
func (s *Server) Run() error {
	s.log.Info("status server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
