// Package server wires pantin's HTTP surface together: the gin engine,
// middleware stack, fleet pool, and graceful shutdown sequence, grounded
// on the teacher's internal/infrastructure/server/server.go gin.New +
// gin.Recovery + middleware-stack shape (spec.md §6.1/§6.4, SPEC_FULL.md
// §6.1).
package server

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	pantinhttp "github.com/skarab42/pantin/internal/api/http"
	"github.com/skarab42/pantin/internal/api/middleware"
	"github.com/skarab42/pantin/internal/infrastructure/config"
	"github.com/skarab42/pantin/internal/infrastructure/monitoring"
	"github.com/skarab42/pantin/internal/pool"
)

// Server owns the gin engine and the underlying net/http.Server it runs on.
type Server struct {
	engine *gin.Engine
	http   *nethttp.Server
	pool   *pool.Pool
	log    *zap.Logger
}

// New builds the gin engine, mounts the middleware stack and routes, and
// returns a Server ready for Run. The pool is created by the caller;
// Server.Shutdown drains it after the HTTP server has stopped.
func New(cfg *config.Config, log *zap.Logger, metrics *monitoring.Metrics, fleet *pool.Pool) *Server {
	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(monitoring.Middleware(metrics))
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	engine.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	handlers := pantinhttp.New(fleet, metrics, log, cfg.Server.RequestTimeout)

	engine.GET("/ping", handlers.Ping)
	engine.GET("/health", handlers.Health)
	engine.GET("/screenshot", handlers.Screenshot)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(nethttp.StatusNotFound, gin.H{"cause": "not found"})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	return &Server{
		engine: engine,
		http:   &nethttp.Server{Addr: addr, Handler: engine},
		pool:   fleet,
		log:    log,
	}
}

// Run starts the HTTP server and blocks until it stops or fails. It
// returns nil on a clean Shutdown-triggered close.
func (s *Server) Run() error {
	s.log.Info("starting http server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests (bounded by ctx), then drains the
// fleet pool, per spec.md §9's "hosting binary... should install a
// shutdown hook that drains the pool."
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.pool.Shutdown(drainCtx)

	return nil
}
