package minio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

var (
	ErrMinIOClientClosed = errors.New(errors.ErrCodeStorage, "minio client is closed")
	ErrObjectNotFound    = errors.New(errors.ErrCodeNotFound, "object not found")
)

// MinIOAPI is the subset of the SDK the archive and the tables source use.
// OpenObject replaces GetObject so that reads can be mocked; the SDK adapter
// stats the object first, which surfaces NoSuchKey before the caller reads.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, minio.ObjectInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// sdkAdapter adapts *minio.Client to MinIOAPI.
type sdkAdapter struct {
	*minio.Client
}

func (a sdkAdapter) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, minio.ObjectInfo, error) {
	obj, err := a.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minio.ObjectInfo{}, err
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, minio.ObjectInfo{}, err
	}
	return obj, info, nil
}

// MinIOConfig holds connection and layout settings.
type MinIOConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	AccessKeyID      string        `mapstructure:"access_key"`
	SecretAccessKey  string        `mapstructure:"secret_key"`
	UseSSL           bool          `mapstructure:"use_ssl"`
	Region           string        `mapstructure:"region"`
	Bucket           string        `mapstructure:"bucket"`
	ArchivePrefix    string        `mapstructure:"archive_prefix"`
	ArchiveRetention int           `mapstructure:"archive_retention_days"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
}

type MinIOClient struct {
	client MinIOAPI
	config *MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewMinIOClient connects, creates the bucket when missing and installs the
// archive expiry rule.
func NewMinIOClient(cfg *MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	applyDefaults(cfg)

	sdk, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if _, err := sdk.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio").WithDetail(cfg.Endpoint)
	}

	c := NewMinIOClientWithAPI(sdkAdapter{sdk}, cfg, log)
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	if err := c.SetupLifecycleRules(ctx); err != nil {
		return nil, err
	}

	c.logger.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// NewMinIOClientWithAPI wires an existing API implementation; tests pass a mock.
func NewMinIOClientWithAPI(api MinIOAPI, cfg *MinIOConfig, log logging.Logger) *MinIOClient {
	applyDefaults(cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &MinIOClient{client: api, config: cfg, logger: log}
}

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "legaldoc"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "results/"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
}

func (c *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to check bucket existence").WithDetail(c.config.Bucket)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "failed to create bucket").WithDetail(c.config.Bucket)
	}
	c.logger.Info("Created bucket", logging.String("bucket", c.config.Bucket))
	return nil
}

// SetupLifecycleRules expires archived results after ArchiveRetention days.
// A zero retention keeps them forever.  Failures are logged, not returned:
// some S3-compatible stores reject lifecycle configuration.
func (c *MinIOClient) SetupLifecycleRules(ctx context.Context) error {
	if c.config.ArchiveRetention <= 0 {
		return nil
	}
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:         "archive-expiry",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: c.config.ArchivePrefix},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(c.config.ArchiveRetention)},
		},
	}
	if err := c.client.SetBucketLifecycle(ctx, c.config.Bucket, cfg); err != nil {
		c.logger.Warn("Failed to set archive lifecycle", logging.Err(err))
	}
	return nil
}

func (c *MinIOClient) API() MinIOAPI { return c.client }

func (c *MinIOClient) Bucket() string { return c.config.Bucket }

func (c *MinIOClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *MinIOClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// HealthCheck verifies the endpoint answers and the bucket exists.
func (c *MinIOClient) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrMinIOClientClosed
	}
	exists, err := c.client.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	}
	if !exists {
		return errors.New(errors.ErrCodeStorage, "bucket missing").WithDetail(c.config.Bucket)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

//Personal.AI order the ending
