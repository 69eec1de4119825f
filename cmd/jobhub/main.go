// jobhub is the job control plane server: it runs child-process and
// download jobs for authenticated clients and streams their output over
// WebSocket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs"

	"github.com/codeready-toolchain/jobhub/pkg/api"
	"github.com/codeready-toolchain/jobhub/pkg/bus"
	"github.com/codeready-toolchain/jobhub/pkg/config"
	"github.com/codeready-toolchain/jobhub/pkg/jobs"
	"github.com/codeready-toolchain/jobhub/pkg/metrics"
	"github.com/codeready-toolchain/jobhub/pkg/version"
)

func main() {
	// Parse command-line flags
	envFile := flag.String("env-file", ".env", "Path to an environment file")
	flag.Parse()

	// Load .env file, if present
	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	slog.Info("Starting jobhub", "version", version.Full())

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Set up metrics
	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	// 3. Event bus for job output and status fan-out
	eventBus := bus.New(bus.DefaultQueueCapacity, m)

	// 4. Job registry
	registry := jobs.NewRegistry(cfg, eventBus, m)
	slog.Info("Job registry initialized",
		"projects_dir", cfg.ProjectsDir,
		"job_timeout", cfg.JobTimeout,
		"job_retention", cfg.JobRetention)

	// 5. HTTP + WebSocket server
	connManager := api.NewConnectionManager(eventBus, m, cfg.WSWriteTimeout, cfg.PublicDomainURLs)
	httpServer := api.NewServer(cfg, registry, connManager, promRegistry)

	// 6. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("jobhub started successfully", "address", cfg.SocketAddress)

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop the HTTP surface, then cancel jobs and
	// wait for their runners within the shutdown budget.
	httpShutdownCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	registryShutdownCtx, registryCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer registryCancel()

	done := make(chan struct{})
	go func() {
		registry.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Job registry stopped gracefully")
	case <-registryShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, abandoning unfinished jobs")
	}

	slog.Info("Shutdown complete")
}
