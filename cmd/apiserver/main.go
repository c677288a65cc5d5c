// API server entry point for LegalDoc-Intelligence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
	"github.com/turtacn/LegalDoc-Intelligence/internal/bootstrap"
	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/textclean"
	grpcserver "github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/grpc"
	httpserver "github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const (
	healthProbeInterval = 15 * time.Second
	limiterCleanup      = time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: LEGALDOC_* environment)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC health port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}
	if *grpcPort > 0 {
		cfg.Server.GRPCPort = *grpcPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("apiserver exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	logger.Info("starting LegalDoc-Intelligence API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("build_date", buildDate),
		logging.Int("http_port", cfg.Server.Port),
		logging.Int("grpc_port", cfg.Server.GRPCPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		collector prometheus.MetricsCollector
		metrics   *prometheus.AppMetrics
	)
	if cfg.Metrics.Enabled {
		col, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return err
		}
		collector, metrics = col, prometheus.NewAppMetrics(col)
	}

	infra, err := bootstrap.InitInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close(context.Background())

	engine, err := bootstrap.NewEngine(ctx, cfg.Resolver, infra.MinIO, logger, metrics)
	if err != nil {
		return err
	}
	engine.RunReloader(ctx, logger)

	svcCfg := resolution.DefaultConfig()
	svcCfg.BatchConcurrency = cfg.Resolver.BatchConcurrency
	if cfg.Kafka.ResultTopic != "" {
		svcCfg.ResultTopic = cfg.Kafka.ResultTopic
	}
	svc := resolution.NewService(engine, svcCfg, logger.Named("resolution"), infra.ServiceOptions(metrics)...)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	checkers := infra.Checkers()
	routerCfg := httpserver.RouterConfig{
		EntityHandler:    handlers.NewEntityHandler(svc, logger, 0),
		DocumentHandler:  handlers.NewDocumentHandler(svc),
		TextHandler:      handlers.NewTextHandler(textclean.New(textclean.DefaultOptions())),
		HealthHandler:    handlers.NewHealthHandler(version, metrics, checkers...),
		CORSOrigins:      cfg.Server.CORSOrigins,
		MaxBodySize:      cfg.Server.MaxBodySize,
		Logging:          middleware.LoggingConfig{SkipPaths: []string{"/healthz", "/readyz", cfg.Metrics.Path}, SlowThreshold: time.Second},
		Logger:           logger.Named("http"),
		Metrics:          metrics,
		MetricsCollector: collector,
		MetricsPath:      cfg.Metrics.Path,
	}
	verifier, err := bootstrap.NewVerifier(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}
	if verifier != nil {
		routerCfg.Verifier = verifier
	}
	if cfg.Server.RateLimitRPS > 0 {
		limiter := middleware.NewTokenBucketLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, limiterCleanup)
		defer limiter.Stop()
		routerCfg.RateLimiter = limiter
	}
	httpSrv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger.Named("http"))

	grpcCheckers := make([]grpcserver.Checker, len(checkers))
	for i, c := range checkers {
		grpcCheckers[i] = c
	}
	grpcSrv, err := grpcserver.NewServer(fmt.Sprintf(":%d", cfg.Server.GRPCPort),
		grpcserver.WithLogger(logger),
		grpcserver.WithMetrics(metrics),
		grpcserver.WithCheckers(healthProbeInterval, grpcCheckers...),
		grpcserver.WithGracefulTimeout(cfg.Server.ShutdownTimeout),
		grpcserver.WithReflection(cfg.Server.Mode == "debug"),
	)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start() }()
	go func() { errCh <- grpcSrv.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("server failed, shutting down", logging.Err(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
	}
	if err := grpcSrv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("gRPC server shutdown error", logging.Err(err))
	}

	logger.Info("servers stopped")
	return runErr
}

//Personal.AI order the ending
