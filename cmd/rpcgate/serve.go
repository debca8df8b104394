package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/rpcgate/adapters/clock"
	httpadapter "github.com/artpar/rpcgate/adapters/http"
	"github.com/artpar/rpcgate/adapters/idgen"
	"github.com/artpar/rpcgate/adapters/metrics"
	"github.com/artpar/rpcgate/adapters/ws"
	"github.com/artpar/rpcgate/config"
	"github.com/artpar/rpcgate/core/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo RPC server (HTTP + WebSocket)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	holder, err := config.NewHolder(cfgFile, zerolog.New(os.Stdout).With().Timestamp().Logger())
	if err != nil {
		return err
	}
	defer holder.Stop()

	cfg := holder.Get()
	logger := buildLogger(cfg)

	emitter := telemetry.NewEmitter(logger, telemetry.NewLogSink(logger))
	if cfg.Metrics.Enabled {
		emitter.Attach(metrics.New())
	}

	table, err := buildDemoDeclaration(holder, logger, emitter).Build()
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	logger.Info().
		Strs("paths", table.Paths()).
		Msg("routing table ready")

	if cfgFile != "" {
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config watch unavailable")
		}
		holder.WatchSignals()
	}

	ids := idgen.UUID{}
	clk := clock.Real{}

	mux := chi.NewRouter()
	httpadapter.NewHandler(table, logger, ids, clk).Register(mux)
	mux.Handle("/ws", ws.NewHandler(table, logger, ids, clk))
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildLogger constructs the process logger from config.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Logging.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
