// Worker entry point for LegalDoc-Intelligence.
//
// The worker consumes resolve requests from Kafka, resolves them with the same
// engine and sinks as the API server, publishes EntitiesResolved events and
// dead-letters messages that keep failing.  A small HTTP listener exposes
// /healthz, /readyz and /metrics for probes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
	"github.com/turtacn/LegalDoc-Intelligence/internal/bootstrap"
	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
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
	defaultHealthPort = 8081
	topicSetupTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: LEGALDOC_* environment)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for /healthz, /readyz and /metrics")
	consumers := flag.Int("consumers", 0, "consumer group members in this process (default: kafka.concurrency)")
	ensureTopics := flag.Bool("ensure-topics", false, "create the request, result and dead-letter topics before consuming")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *consumers > 0 {
		cfg.Kafka.Concurrency = *consumers
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *healthPort, *ensureTopics, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, healthPort int, ensureTopics bool, logger logging.Logger) error {
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("worker requires kafka.enabled")
	}

	logger.Info("starting LegalDoc-Intelligence worker",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("build_date", buildDate),
		logging.String("topic", cfg.Kafka.RequestTopic),
		logging.Int("consumers", cfg.Kafka.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ensureTopics {
		if err := createTopics(ctx, cfg.Kafka, logger); err != nil {
			return err
		}
	}

	var (
		collector prometheus.MetricsCollector
		metrics   *prometheus.AppMetrics
	)
	if cfg.Metrics.Enabled {
		col, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            "worker",
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
	svcCfg.Source = "legaldoc-worker"
	svcCfg.ResultTopic = cfg.Kafka.ResultTopic
	svcCfg.BatchConcurrency = cfg.Resolver.BatchConcurrency
	svc := resolution.NewService(engine, svcCfg, logger.Named("resolution"), infra.ServiceOptions(metrics)...)

	// Each consumer is one member of the group; partitions are spread
	// across them by the broker.
	group := make([]*kafka.Consumer, 0, cfg.Kafka.Concurrency)
	defer func() {
		for _, c := range group {
			if err := c.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
			processed, retried, failed, dead := c.Stats()
			logger.Info("consumer stopped",
				logging.Int64("processed", processed),
				logging.Int64("retried", retried),
				logging.Int64("failed", failed),
				logging.Int64("dead_lettered", dead))
		}
	}()
	for i := 0; i < cfg.Kafka.Concurrency; i++ {
		c, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:         cfg.Kafka.Brokers,
			GroupID:         cfg.Kafka.GroupID,
			Topics:          []string{cfg.Kafka.RequestTopic},
			AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
			RetryConfig: kafka.RetryConfig{
				MaxRetries:      cfg.Kafka.MaxRetries,
				RetryBackoff:    cfg.Kafka.RetryBackoff,
				DeadLetterTopic: kafka.TopicDeadLetter,
			},
		}, infra.Producer, logger.Named("consumer").With(logging.Int("member", i)))
		if err != nil {
			return err
		}
		group = append(group, c)
		c.Subscribe(cfg.Kafka.RequestTopic, svc.HandleMessage)
		if err := c.Start(ctx); err != nil {
			return err
		}
	}

	healthSrv := httpserver.NewServer(
		config.ServerConfig{Port: healthPort, ShutdownTimeout: cfg.Server.ShutdownTimeout},
		httpserver.NewRouter(httpserver.RouterConfig{
			HealthHandler:    handlers.NewHealthHandler(version, metrics, infra.Checkers()...),
			Logging:          middleware.LoggingConfig{SkipPaths: []string{"/healthz", "/readyz", cfg.Metrics.Path}},
			Logger:           logger.Named("health"),
			MetricsCollector: collector,
			MetricsPath:      cfg.Metrics.Path,
		}),
		logger.Named("health"))

	errCh := make(chan error, 1)
	go func() { errCh <- healthSrv.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining in-flight messages")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("health server failed, shutting down", logging.Err(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}
	return runErr
}

func createTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		return err
	}
	defer tm.Close()

	ctx, cancel := context.WithTimeout(ctx, topicSetupTimeout)
	defer cancel()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(1))
}
