// Package config provides configuration loading, defaults, and validation for
// the LegalDoc-Intelligence services.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"
	DefaultGRPCPort   = 9090

	DefaultMetricsNamespace = "legaldoc"
	DefaultMetricsPath      = "/metrics"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "legaldoc"
	DefaultDBMaxConns = 10

	DefaultNeo4jURI = "neo4j://localhost:7687"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisTTL       = 24 * time.Hour
	DefaultRedisKeyPrefix = "legaldoc:"

	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaGroupID      = "legaldoc-resolver"
	DefaultKafkaRequestTopic = "legaldoc.document.resolve"
	DefaultKafkaResultTopic  = "legaldoc.entities.resolved"

	DefaultOpenSearchAddr  = "http://localhost:9200"
	DefaultOpenSearchIndex = "legaldoc-entities"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "legaldoc"

	DefaultAuthRolesClaim   = "roles"
	DefaultJWKSRefreshEvery = 5 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// registerDefaults seeds viper with defaults that ApplyDefaults cannot express
// because the zero value is meaningful (booleans).
func registerDefaults(v *viper.Viper) {
	def := entity_resolver.DefaultEngineConfig()
	v.SetDefault("resolver.normalize", def.Normalize)
	v.SetDefault("resolver.clean_text", def.CleanText)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("postgres.auto_migrate", true)
}

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the service default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 8 << 20
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = int(2 * cfg.Server.RateLimitRPS)
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.Auth.RolesClaim == "" {
		cfg.Auth.RolesClaim = DefaultAuthRolesClaim
	}
	if cfg.Auth.JWKSRefreshInterval == 0 {
		cfg.Auth.JWKSRefreshInterval = DefaultJWKSRefreshEvery
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Resolver ──────────────────────────────────────────────────────────────
	def := entity_resolver.DefaultEngineConfig()
	if cfg.Resolver.MaxTextRunes == 0 {
		cfg.Resolver.MaxTextRunes = def.MaxTextRunes
	}
	if cfg.Resolver.BatchConcurrency == 0 {
		cfg.Resolver.BatchConcurrency = def.BatchConcurrency
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultDBHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultDBPort
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = DefaultDBName
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = DefaultDBMaxConns
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Neo4j.MaxConnectionPoolSize = 50
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = 5 * time.Second
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	// DB is an int; 0 is a valid explicit value so we leave it as-is.

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = DefaultKafkaRequestTopic
	}
	if cfg.Kafka.ResultTopic == "" {
		cfg.Kafka.ResultTopic = DefaultKafkaResultTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = time.Second
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.Concurrency == 0 {
		cfg.Kafka.Concurrency = 1
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.ArchivePrefix == "" {
		cfg.MinIO.ArchivePrefix = "results/"
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

//Personal.AI order the ending
