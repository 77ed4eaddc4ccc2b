// Command tabled is the multi-tenant table-editor backend: session
// endpoints over HTTP, per-session command channel over WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/api"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/config"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/probe"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/session"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/telemetry"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the configuration is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "tabled",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	// Re-configure with the loaded level.
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "tabled",
		Version: version,
	})

	if *configPath != "" {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "file").
			Str(log.FieldPath, *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTLPEndpoint != "",
		ServiceName:    "tabled",
		ServiceVersion: version,
		Environment:    config.ParseString("TABLED_ENVIRONMENT", "production"),
		ExporterType:   config.ParseString("TABLED_OTLP_EXPORTER", "grpc"),
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "telemetry.init_failed").
			Msg("failed to initialize telemetry")
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	holder := config.NewHolder(cfg, *configPath)

	sessions := session.NewManager(
		&probe.Factory{Prober: probe.New()},
		session.WithTimeout(cfg.SessionTimeout),
	)

	server := api.NewServer(holder, sessions, api.WithVersion(version))

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Listen).
		Int("targets", len(cfg.Targets)).
		Msg("starting tabled")

	g, ctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup does not fail without it.
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "config.watcher_start_failed").
			Msg("failed to start config watcher")
	}

	// Re-apply the dynamic settings on every successful reload.
	reloadCh := make(chan config.Config, 1)
	holder.RegisterListener(reloadCh)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case newCfg := <-reloadCh:
				log.SetLevel(newCfg.LogLevel)
				sessions.SetTimeout(newCfg.SessionTimeout)
			}
		}
	})

	// Periodic sweep of abandoned sessions.
	sweeper := &session.Sweeper{Mgr: sessions, Interval: cfg.SweepInterval}
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Str(log.FieldEvent, "shutdown").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http server shutdown failed")
		}
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("session drain failed")
		}
		holder.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
	logger.Info().Msg("daemon stopped")
}
