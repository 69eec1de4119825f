package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/jobhub/pkg/config"
	"github.com/codeready-toolchain/jobhub/pkg/jobs"
)

// Server is the HTTP and WebSocket surface over the job registry.
type Server struct {
	cfg         *config.Config
	registry    *jobs.Registry
	connManager *ConnectionManager
	httpServer  *http.Server
}

// NewServer wires the routes and returns a server ready to Start. The
// gatherer backs the /metrics endpoint; pass the registry the collectors
// were registered on.
func NewServer(cfg *config.Config, registry *jobs.Registry, connManager *ConnectionManager, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:         cfg,
		registry:    registry,
		connManager: connManager,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.SocketAddress,
		Handler: s.routes(gatherer),
	}
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), securityHeaders())

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// The upgrade itself is unauthenticated; events carry no secrets and
	// job control stays behind the api_key header.
	engine.GET("/ws", s.handleWS)

	apiGroup := engine.Group("/api", requireAPIKey(s.registry.ValidateToken))
	apiGroup.GET("/request_chat_id", s.handleRequestChatID)
	apiGroup.POST("/run", s.handleRun)
	apiGroup.POST("/download_zip_file", s.handleDownloadZipFile)
	apiGroup.POST("/gs_log_to_locust_converter", s.handleConverter)
	apiGroup.PUT("/cancel/:id", s.handleCancel)
	apiGroup.GET("/status/:id", s.handleStatus)
	apiGroup.GET("/list_log_files", s.handleListLogFiles)
	apiGroup.GET("/get_log_file_text", s.handleGetLogFileText)

	return engine
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	slog.Info("API server listening", "address", s.cfg.SocketAddress)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
