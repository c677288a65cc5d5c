// Package config defines all configuration structures for the
// LegalDoc-Intelligence services.  No I/O or parsing logic lives here, only
// plain data types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	// RateLimitRPS is the per-client sustained request rate; 0 disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// ResolverConfig embeds the engine tunables plus where the tables come from.
// TablesPath wins over TablesObject; with neither set the embedded defaults
// are used.
type ResolverConfig struct {
	entity_resolver.EngineConfig `mapstructure:",squash"`

	TablesPath   string `mapstructure:"tables_path"`
	TablesObject string `mapstructure:"tables_object"`
	WatchTables  bool   `mapstructure:"watch_tables"`
}

// PostgresConfig holds the result repository connection parameters.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN renders the libpq-style connection URL understood by pgx and migrate.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Neo4jConfig holds the mention graph connection parameters.
type Neo4jConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
	Database              string        `mapstructure:"database"`
}

// RedisConfig holds result cache connection parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds the worker's consumer and producer parameters.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	RequestTopic    string        `mapstructure:"request_topic"`
	ResultTopic     string        `mapstructure:"result_topic"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	BatchSize       int           `mapstructure:"batch_size"`
	Concurrency     int           `mapstructure:"concurrency"`
}

// OpenSearchConfig holds the entity index connection parameters.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	Index              string   `mapstructure:"index"`
}

// MinIOConfig holds object-storage parameters for tables and archives.
type MinIOConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	ArchivePrefix string `mapstructure:"archive_prefix"`
}

// AuthConfig controls bearer-token authentication of the HTTP API.  Exactly
// one of JWKSURL (RS256, e.g. a Keycloak realm's certs endpoint) and
// HMACSecret (HS256) must be set when enabled.
type AuthConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Issuer              string        `mapstructure:"issuer"`
	Audience            string        `mapstructure:"audience"`
	JWKSURL             string        `mapstructure:"jwks_url"`
	JWKSRefreshInterval time.Duration `mapstructure:"jwks_refresh_interval"`
	HMACSecret          string        `mapstructure:"hmac_secret"`
	// RolesClaim names the claim holding the caller's roles.
	RolesClaim string `mapstructure:"roles_claim"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.  The API server, the worker and
// the CLI all read their settings from the relevant sub-struct.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Log        logging.LogConfig `mapstructure:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Resolver   ResolverConfig    `mapstructure:"resolver"`
	Postgres   PostgresConfig    `mapstructure:"postgres"`
	Neo4j      Neo4jConfig       `mapstructure:"neo4j"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig  `mapstructure:"opensearch"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// Disabled infrastructure sections are not checked.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("config: server.grpc_port %d is out of range [0, 65535]", c.Server.GRPCPort)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("config: server.rate_limit_rps must be ≥ 0, got %g", c.Server.RateLimitRPS)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Auth
	if c.Auth.Enabled {
		if (c.Auth.JWKSURL == "") == (c.Auth.HMACSecret == "") {
			return fmt.Errorf("config: auth requires exactly one of auth.jwks_url and auth.hmac_secret")
		}
	}

	// Resolver
	if c.Resolver.MaxTextRunes < 0 {
		return fmt.Errorf("config: resolver.max_text_runes must be ≥ 0, got %d", c.Resolver.MaxTextRunes)
	}
	if c.Resolver.BatchConcurrency < 1 {
		return fmt.Errorf("config: resolver.batch_concurrency must be ≥ 1, got %d", c.Resolver.BatchConcurrency)
	}
	if c.Resolver.TablesObject != "" && !c.MinIO.Enabled {
		return fmt.Errorf("config: resolver.tables_object requires minio.enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" {
			return fmt.Errorf("config: postgres.host is required")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			return fmt.Errorf("config: postgres.port %d is out of range [1, 65535]", c.Postgres.Port)
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("config: postgres.user is required")
		}
		if c.Postgres.DBName == "" {
			return fmt.Errorf("config: postgres.db_name is required")
		}
		if c.Postgres.MaxConns < 1 {
			return fmt.Errorf("config: postgres.max_conns must be ≥ 1, got %d", c.Postgres.MaxConns)
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
		switch c.Kafka.AutoOffsetReset {
		case "earliest", "latest":
		default:
			return fmt.Errorf("config: kafka.auto_offset_reset %q is invalid; expected earliest|latest", c.Kafka.AutoOffsetReset)
		}
	}

	// Neo4j
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required")
	}

	// OpenSearch
	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address")
	}

	// MinIO
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required")
		}
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

//Personal.AI order the ending
