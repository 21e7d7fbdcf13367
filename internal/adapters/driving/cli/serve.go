package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/metrics"
	"github.com/custodia-labs/sercha-docs/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/logger"
)

var (
	servePort        int
	serveHost        string
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over MCP and keep it fresh",
	Long: `Starts the refresh scheduler and the Model Context Protocol server.

The scheduler indexes every enabled source at startup and then every
refresh.interval_hours. Edits to the config file are picked up without a
restart.

By default the MCP server communicates over stdio. Use --port (or
server.transport = "http") to serve streamable HTTP at /mcp instead.

Examples:
  # Stdio mode (for desktop AI assistants)
  sercha-docs serve

  # HTTP mode with Prometheus metrics
  sercha-docs serve --port 8080 --metrics-addr 127.0.0.1:9090

Assistant configuration:
  {
    "mcpServers": {
      "docs": {
        "command": "/path/to/sercha-docs",
        "args": ["serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "serve MCP over HTTP on this port (0 = use config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "HTTP bind host (default from config)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.SetTimestamps(true)
	defer logger.SetTimestamps(false)
	log := logger.With("serve")

	var recorder driven.MetricsRecorder
	if cfg.Server.MetricsAddr != "" {
		rec := metrics.NewRecorder()
		recorder = rec
		go func() {
			if err := serveMetrics(ctx, cfg.Server.MetricsAddr, rec.Handler()); err != nil {
				log.Error("metrics server: %v", err)
			}
		}()
	}

	rt, err := newRuntime(ctx, cfg, runtimeOptions{metrics: recorder})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error("shutdown: %v", err)
		}
	}()

	if err := rt.CheckEmbedding(ctx); err != nil {
		// Queries and runs report the failure themselves; serving continues.
		log.Error("embedding check failed: %v", err)
	}

	go func() {
		if err := rt.Scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stopped: %v", err)
		}
	}()

	if cfg.Path != "" {
		go func() {
			err := file.Watch(ctx, cfg.Path, func(next *file.Config) {
				rt.Pipeline.SetSources(next.Sources)
				log.Info("config reloaded: %d source(s)", len(next.Sources))
			})
			if err != nil {
				log.Warn("config watch disabled: %v", err)
			}
		}()
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Query:   rt.Query,
		Ingest:  rt.Pipeline,
		Refresh: rt.Scheduler,
	}, mcp.WithDefaultLimit(cfg.Server.QueryLimit))
	if err != nil {
		return err
	}

	if cfg.Server.Transport == file.TransportHTTP {
		return server.RunHTTP(ctx, net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
	}
	log.Info("serving MCP over stdio")
	return server.Run(ctx)
}

// applyServeFlags overlays command line flags on the loaded config.
func applyServeFlags(cfg *file.Config) error {
	if servePort != 0 {
		cfg.Server.Transport = file.TransportHTTP
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveMetricsAddr != "" {
		cfg.Server.MetricsAddr = serveMetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("serve flags: %w", err)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background()) //nolint:errcheck
	}()

	logger.With("metrics").Info("listening on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
