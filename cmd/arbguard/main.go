// Package main is the entry point for the arbguard risk and settlement service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/arbguard/business/api"
	"github.com/fd1az/arbguard/business/blockchain"
	"github.com/fd1az/arbguard/business/risk"
	"github.com/fd1az/arbguard/business/settlement"
	"github.com/fd1az/arbguard/internal/apm"
	"github.com/fd1az/arbguard/internal/config"
	"github.com/fd1az/arbguard/internal/health"
	"github.com/fd1az/arbguard/internal/logger"
	"github.com/fd1az/arbguard/internal/metrics"
	"github.com/fd1az/arbguard/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arbguard %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logLevel(cfg.App.LogLevel), cfg.App.Name, logger.OTelTraceID)
	log.Info(ctx, "starting arbguard",
		"version", version,
		"commit", commit,
		"environment", cfg.App.Environment,
	)

	if cfg.Telemetry.Enabled {
		stop, err := startTelemetry(ctx, cfg.Telemetry, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	healthServer := health.NewServer(cfg.HTTP.HealthPort, version, log)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.HTTP.HealthPort)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = healthServer.Stop(stopCtx)
	}()

	mono := monolith.New(cfg, log, healthServer)
	defer func() {
		if err := mono.Close(); err != nil {
			log.Error(context.Background(), "error closing modules", "error", err)
		}
	}()

	// Dependency order: risk and settlement read blockchain services, the
	// API reads both.
	modules := []monolith.Module{
		&blockchain.Module{},
		&risk.Module{},
		&settlement.Module{},
		&api.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	log.Info(ctx, "all modules started")
	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
	return nil
}

// startTelemetry installs the trace and metric providers and returns a
// function flushing both.
func startTelemetry(ctx context.Context, cfg config.TelemetryConfig, log logger.LoggerInterface) (func(), error) {
	traceProvider, err := apm.NewTraceProvider(ctx, log, apm.Options{
		Provider:    apm.Provider(cfg.TraceExporter),
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}
	log.Info(ctx, "tracing initialized", "exporter", cfg.TraceExporter, "endpoint", cfg.OTLPEndpoint)

	metricProvider, err := metrics.NewMetricProvider(ctx,
		metrics.WithServiceName(cfg.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{
			Provider: metrics.PrometheusProvider,
		}),
	)
	if err != nil {
		_ = traceProvider.Stop()
		return nil, fmt.Errorf("failed to start metrics: %w", err)
	}
	metricsServer := metrics.ServePrometheusMetrics(log, cfg.PrometheusPort)

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			log.Warn(stopCtx, "metrics server shutdown", "error", err)
		}
		if err := metricProvider.Shutdown(stopCtx); err != nil {
			log.Warn(stopCtx, "metric provider shutdown", "error", err)
		}
		if err := traceProvider.Stop(); err != nil {
			log.Warn(stopCtx, "trace provider shutdown", "error", err)
		}
	}, nil
}

func logLevel(s string) logger.Level {
	switch s {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
