// Package bootstrap assembles the resolver engine and the optional backends
// from configuration.  cmd/apiserver and cmd/worker share it so that both
// processes resolve with the same tables and write to the same sinks.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	neo4jdriver "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/neo4j"
	graphrepo "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/postgres/repositories"
	redisclient "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/search/opensearch"
	minioclient "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/handlers"
)

const closeTimeout = 10 * time.Second

// Infrastructure holds the backend clients of one process.  A nil field means
// the backend is disabled in configuration.
type Infrastructure struct {
	Postgres *postgres.Connection
	Results  *pgrepo.ResultRepository

	Neo4j *neo4jdriver.Driver
	Graph *graphrepo.MentionGraph

	Redis *redisclient.Client
	Cache *redisclient.ResultCache

	OpenSearch *opensearch.Client
	Indexer    *opensearch.Indexer
	Searcher   *opensearch.Searcher

	MinIO   *minioclient.MinIOClient
	Archive *minioclient.ResultArchive

	Producer *kafka.Producer

	logger logging.Logger
}

// InitInfrastructure connects every enabled backend.  On failure the
// backends connected so far are closed again.
func InitInfrastructure(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infrastructure, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	infra := &Infrastructure{logger: logger}

	steps := []struct {
		name    string
		enabled bool
		init    func(context.Context, *config.Config) error
	}{
		{"postgres", cfg.Postgres.Enabled, infra.initPostgres},
		{"neo4j", cfg.Neo4j.Enabled, infra.initNeo4j},
		{"redis", cfg.Redis.Enabled, infra.initRedis},
		{"opensearch", cfg.OpenSearch.Enabled, infra.initOpenSearch},
		{"minio", cfg.MinIO.Enabled, infra.initMinIO},
		{"kafka", cfg.Kafka.Enabled, infra.initKafka},
	}
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := s.init(ctx, cfg); err != nil {
			infra.Close(context.Background())
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		logger.Info("backend connected", logging.String("backend", s.name))
	}
	return infra, nil
}

func (i *Infrastructure) initPostgres(_ context.Context, cfg *config.Config) error {
	conn, err := postgres.NewConnection(cfg.Postgres, i.logger)
	if err != nil {
		return err
	}
	i.Postgres = conn
	if cfg.Postgres.AutoMigrate {
		if err := postgres.NewMigrator(conn.DB(), i.logger).Up(); err != nil {
			return err
		}
	}
	i.Results = pgrepo.NewResultRepository(conn, i.logger)
	return nil
}

func (i *Infrastructure) initNeo4j(ctx context.Context, cfg *config.Config) error {
	drv, err := neo4jdriver.NewDriver(cfg.Neo4j, i.logger)
	if err != nil {
		return err
	}
	i.Neo4j = drv
	i.Graph = graphrepo.NewMentionGraph(drv, i.logger)
	return i.Graph.EnsureSchema(ctx)
}

func (i *Infrastructure) initRedis(_ context.Context, cfg *config.Config) error {
	rc := cfg.Redis
	client, err := redisclient.NewClient(&redisclient.RedisConfig{
		Mode:         "standalone",
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	}, i.logger)
	if err != nil {
		return err
	}
	i.Redis = client

	var opts []redisclient.CacheOption
	if rc.KeyPrefix != "" {
		opts = append(opts, redisclient.WithPrefix(rc.KeyPrefix))
	}
	if rc.DefaultTTL > 0 {
		opts = append(opts, redisclient.WithDefaultTTL(rc.DefaultTTL))
	}
	i.Cache = redisclient.NewResultCache(client, i.logger, opts...)
	return nil
}

func (i *Infrastructure) initOpenSearch(ctx context.Context, cfg *config.Config) error {
	client, err := opensearch.NewClient(opensearch.ClientConfigFrom(cfg.OpenSearch), i.logger)
	if err != nil {
		return err
	}
	i.OpenSearch = client
	i.Indexer = opensearch.NewIndexer(client, cfg.OpenSearch.Index, opensearch.IndexerConfig{}, i.logger)
	i.Searcher = opensearch.NewSearcher(client, cfg.OpenSearch.Index, opensearch.SearcherConfig{}, i.logger)
	return i.Indexer.EnsureIndex(ctx)
}

func (i *Infrastructure) initMinIO(_ context.Context, cfg *config.Config) error {
	mc := cfg.MinIO
	client, err := minioclient.NewMinIOClient(&minioclient.MinIOConfig{
		Endpoint:        mc.Endpoint,
		AccessKeyID:     mc.AccessKey,
		SecretAccessKey: mc.SecretKey,
		UseSSL:          mc.UseSSL,
		Region:          mc.Region,
		Bucket:          mc.Bucket,
		ArchivePrefix:   mc.ArchivePrefix,
	}, i.logger)
	if err != nil {
		return err
	}
	i.MinIO = client
	i.Archive = minioclient.NewResultArchive(client, i.logger)
	return nil
}

func (i *Infrastructure) initKafka(_ context.Context, cfg *config.Config) error {
	p, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		MaxRetries: cfg.Kafka.MaxRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, i.logger)
	if err != nil {
		return err
	}
	i.Producer = p
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Wiring
// ─────────────────────────────────────────────────────────────────────────────

// Sinks returns the connected result sinks in write order.
func (i *Infrastructure) Sinks() []resolution.ResultSink {
	var sinks []resolution.ResultSink
	if i.Results != nil {
		sinks = append(sinks, i.Results)
	}
	if i.Graph != nil {
		sinks = append(sinks, i.Graph)
	}
	if i.Indexer != nil {
		sinks = append(sinks, i.Indexer)
	}
	if i.Archive != nil {
		sinks = append(sinks, i.Archive)
	}
	return sinks
}

// ServiceOptions wires the connected backends into the resolution service.
// metrics may be nil.
func (i *Infrastructure) ServiceOptions(metrics *prometheus.AppMetrics) []resolution.Option {
	opts := []resolution.Option{resolution.WithSinks(i.Sinks()...)}
	if i.Cache != nil {
		opts = append(opts, resolution.WithCache(i.Cache))
	}
	if i.Results != nil {
		opts = append(opts, resolution.WithDocumentStore(i.Results))
	}
	if i.Searcher != nil {
		opts = append(opts, resolution.WithSearcher(i.Searcher))
	}
	if i.Graph != nil {
		opts = append(opts, resolution.WithMentionGraph(i.Graph))
	}
	if i.Producer != nil {
		opts = append(opts, resolution.WithPublisher(i.Producer))
	}
	if metrics != nil {
		opts = append(opts, resolution.WithMetrics(metrics))
	}
	return opts
}

// Checkers returns one readiness checker per connected backend.
func (i *Infrastructure) Checkers() []handlers.HealthChecker {
	var checks []handlers.HealthChecker
	if i.Postgres != nil {
		checks = append(checks, handlers.NewChecker("postgres", i.Postgres.HealthCheck))
	}
	if i.Neo4j != nil {
		checks = append(checks, handlers.NewChecker("neo4j", i.Neo4j.HealthCheck))
	}
	if i.Redis != nil {
		checks = append(checks, handlers.NewChecker("redis", i.Redis.Ping))
	}
	if i.OpenSearch != nil {
		checks = append(checks, handlers.NewChecker("opensearch", i.OpenSearch.HealthCheck))
	}
	if i.MinIO != nil {
		checks = append(checks, handlers.NewChecker("minio", i.MinIO.HealthCheck))
	}
	return checks
}

// Close releases every connected backend.  It is safe on a partially
// initialised value.
func (i *Infrastructure) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()

	closers := []struct {
		name string
		fn   func() error
	}{
		{"kafka", func() error {
			if i.Producer == nil {
				return nil
			}
			return i.Producer.Close()
		}},
		{"minio", func() error {
			if i.MinIO == nil {
				return nil
			}
			return i.MinIO.Close()
		}},
		{"opensearch", func() error {
			if i.OpenSearch == nil {
				return nil
			}
			return i.OpenSearch.Close()
		}},
		{"redis", func() error {
			if i.Redis == nil {
				return nil
			}
			return i.Redis.Close()
		}},
		{"neo4j", func() error {
			if i.Neo4j == nil {
				return nil
			}
			return i.Neo4j.Close(ctx)
		}},
		{"postgres", func() error {
			if i.Postgres == nil {
				return nil
			}
			return i.Postgres.Close()
		}},
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			i.logger.Warn("backend close failed", logging.String("backend", c.name), logging.Err(err))
		}
	}
}
