package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v3"
	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "invalid configuration")
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "connection failed")
)

// ClientConfig holds the configuration for the OpenSearch client.
type ClientConfig struct {
	Addresses           []string
	Username            string
	Password            string
	InsecureSkipVerify  bool
	MaxRetries          int
	RetryBackoff        time.Duration
	RequestTimeout      time.Duration
	MaxIdleConnsPerHost int
	HealthCheckInterval time.Duration
}

// ClientConfigFrom maps the application configuration section.
func ClientConfigFrom(cfg config.OpenSearchConfig) ClientConfig {
	return ClientConfig{
		Addresses:          cfg.Addresses,
		Username:           cfg.User,
		Password:           cfg.Password,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RequestTimeout:     30 * time.Second,
	}
}

// Client manages the OpenSearch client connection.
type Client struct {
	api     *opensearchapi.Client
	config  ClientConfig
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
}

func newAPIClient(cfg ClientConfig) (*opensearchapi.Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed dev clusters
	}

	backoff := cfg.RetryBackoff
	return opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses:     cfg.Addresses,
			Username:      cfg.Username,
			Password:      cfg.Password,
			MaxRetries:    cfg.MaxRetries,
			RetryBackoff:  func(int) time.Duration { return backoff },
			RetryOnStatus: []int{502, 503, 504, 429},
			Transport:     transport,
		},
	})
}

// NewClient creates a new OpenSearch client, verifies the cluster answers and
// starts a background health probe.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	applyClientDefaults(&cfg)

	api, err := newAPIClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create opensearch client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{api: api, config: cfg, logger: logger, cancel: cancel}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer pingCancel()
	if err := c.Ping(pingCtx); err != nil {
		cancel()
		return nil, ErrConnectionFailed.WithCause(err)
	}

	go c.startHealthCheck(ctx)
	return c, nil
}

// newClientWithAPI wraps an existing API client without pinging.
func newClientWithAPI(api *opensearchapi.Client, cfg ClientConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Client{api: api, config: cfg, logger: logger, cancel: func() {}}
	c.healthy.Store(true)
	return c
}

// Ping checks the connection to OpenSearch.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.api.Ping(ctx, &opensearchapi.PingReq{})
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping failed", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "opensearch ping failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.Newf(errors.ErrCodeServiceUnavailable, "ping returned status %d", resp.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

// HealthCheck pings the cluster; it satisfies the readiness probe contract.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx)
}

// IsHealthy returns the current health status of the client.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// API returns the underlying typed OpenSearch client.
func (c *Client) API() *opensearchapi.Client {
	return c.api
}

// Close stops the health check.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("OpenSearch client closed")
	return nil
}

func (c *Client) startHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()

			if prev && !curr {
				c.logger.Error("OpenSearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("OpenSearch cluster recovered")
			}
		}
	}
}

// ValidateConfig validates the client configuration.
func ValidateConfig(cfg ClientConfig) error {
	if len(cfg.Addresses) == 0 {
		return ErrInvalidConfig
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "MaxRetries must be >= 0")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New(errors.ErrCodeValidation, "RequestTimeout must be > 0")
	}
	return nil
}

//Personal.AI order the ending
