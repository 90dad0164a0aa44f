package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the health/readiness/metrics HTTP surface run alongside the
// scheduler, grounded on compliance/cmd/main.go's router setup and
// graceful-shutdown shape.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Ready reports whether the indexer is ready to serve traffic; it is
// flipped by the entry dispatcher once startup (RPC/DB/Kafka connections,
// schema bootstrap) has completed.
type Ready struct {
	ready bool
}

func (r *Ready) Set(v bool) { r.ready = v }
func (r *Ready) Get() bool  { return r.ready }

// NewServer builds the gin engine exposing /healthz, /readyz, and /metrics.
func NewServer(addr string, production bool, metrics *Metrics, ready *Ready, logger *zap.Logger) *Server {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if !ready.Get() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the HTTP server in the background; errors other than a clean
// shutdown are logged, matching compliance/cmd/main.go's server goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("observability server listening", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("observability server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the HTTP server within the given timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down observability server: %w", err)
	}
	return nil
}
