package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
)

// validConfig returns a Config that passes Validate() with every
// infrastructure section enabled.
func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Postgres.Enabled = true
	cfg.Postgres.User = "legaldoc"
	cfg.Postgres.Password = "secret"
	cfg.Redis.Enabled = true
	cfg.Kafka.Enabled = true
	cfg.Neo4j.Enabled = true
	cfg.OpenSearch.Enabled = true
	cfg.MinIO.Enabled = true
	return cfg
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_DefaultsOnly(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	assert.NoError(t, cfg.Validate(), "all sections disabled needs no credentials")
}

func TestConfig_Validate_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"server port zero", func(c *config.Config) { c.Server.Port = 0 }, "server.port"},
		{"server port high", func(c *config.Config) { c.Server.Port = 65536 }, "server.port"},
		{"grpc port", func(c *config.Config) { c.Server.GRPCPort = -1 }, "server.grpc_port"},
		{"server mode", func(c *config.Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"auth without key source", func(c *config.Config) { c.Auth.Enabled = true }, "auth.jwks_url"},
		{"auth with both key sources", func(c *config.Config) {
			c.Auth.Enabled = true
			c.Auth.JWKSURL = "https://sso.example.vn/certs"
			c.Auth.HMACSecret = "s"
		}, "exactly one"},
		{"max runes", func(c *config.Config) { c.Resolver.MaxTextRunes = -1 }, "resolver.max_text_runes"},
		{"batch", func(c *config.Config) { c.Resolver.BatchConcurrency = 0 }, "resolver.batch_concurrency"},
		{"tables object without minio", func(c *config.Config) {
			c.MinIO.Enabled = false
			c.Resolver.TablesObject = "tables.yaml"
		}, "resolver.tables_object"},
		{"postgres host", func(c *config.Config) { c.Postgres.Host = "" }, "postgres.host"},
		{"postgres user", func(c *config.Config) { c.Postgres.User = "" }, "postgres.user"},
		{"postgres db", func(c *config.Config) { c.Postgres.DBName = "" }, "postgres.db_name"},
		{"postgres conns", func(c *config.Config) { c.Postgres.MaxConns = 0 }, "postgres.max_conns"},
		{"redis addr", func(c *config.Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"redis db", func(c *config.Config) { c.Redis.DB = -1 }, "redis.db"},
		{"kafka brokers", func(c *config.Config) { c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"kafka group", func(c *config.Config) { c.Kafka.GroupID = "" }, "kafka.group_id"},
		{"kafka offset", func(c *config.Config) { c.Kafka.AutoOffsetReset = "newest" }, "kafka.auto_offset_reset"},
		{"neo4j uri", func(c *config.Config) { c.Neo4j.URI = "" }, "neo4j.uri"},
		{"opensearch", func(c *config.Config) { c.OpenSearch.Addresses = nil }, "opensearch.addresses"},
		{"minio endpoint", func(c *config.Config) { c.MinIO.Endpoint = "" }, "minio.endpoint"},
		{"minio bucket", func(c *config.Config) { c.MinIO.Bucket = "" }, "minio.bucket"},
		{"log level", func(c *config.Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "text" }, "log.format"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_Validate_DisabledSectionsSkipped(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Postgres.Enabled = false
	cfg.Postgres.User = ""
	cfg.Kafka.Enabled = false
	cfg.Kafka.Brokers = nil
	assert.NoError(t, cfg.Validate())
}

func TestPostgresConfig_DSN(t *testing.T) {
	t.Parallel()
	p := config.PostgresConfig{User: "u", Password: "p", Host: "db", Port: 5433, DBName: "legal", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/legal?sslmode=disable", p.DSN())
}

//Personal.AI order the ending
