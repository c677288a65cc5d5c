package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// ResultCache stores resolution results keyed by document content and the
// tables version that produced them.  A table reload therefore never serves
// stale results; old entries simply age out.
type ResultCache struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
	jitter func(time.Duration) time.Duration
	group  singleflight.Group
}

type CacheOption func(*ResultCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *ResultCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *ResultCache) { c.ttl = ttl }
}

// WithoutJitter stores entries with the exact TTL.
func WithoutJitter() CacheOption {
	return func(c *ResultCache) { c.jitter = func(d time.Duration) time.Duration { return d } }
}

func NewResultCache(client *Client, log logging.Logger, opts ...CacheOption) *ResultCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &ResultCache{
		client: client,
		logger: log,
		prefix: "legaldoc:",
		ttl:    24 * time.Hour,
		jitter: jitterTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// jitterTTL spreads expiry by ±10% so entries written together do not expire
// together.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return 0
	}
	j := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(j)
}

// cacheKeyInput is the hashed part of a document; the ID is excluded so that
// identical content submitted under different IDs shares an entry.
type cacheKeyInput struct {
	Text     string                `json:"t"`
	Tokens   []entity.TaggedToken  `json:"k"`
	Patterns []entity.PatternMatch `json:"p"`
}

// DocumentKey derives the cache key for doc under the given tables version.
func DocumentKey(doc *entity.Document, tablesVersion string) string {
	data, _ := json.Marshal(cacheKeyInput{Text: doc.Text, Tokens: doc.Tokens, Patterns: doc.Patterns})
	sum := sha256.Sum256(data)
	return "result:" + tablesVersion + ":" + hex.EncodeToString(sum[:])
}

func (c *ResultCache) fullKey(key string) string {
	return c.prefix + key
}

// Get returns ErrCacheMiss when the key is absent.
func (c *ResultCache) Get(ctx context.Context, key string) (*entity.Result, error) {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	var res entity.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt cache entry").WithDetail(key)
	}
	return &res, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, res *entity.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return ErrSerializationFailed
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.jitter(c.ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

func (c *ResultCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
	}
	return nil
}

// GetOrResolve returns the cached result for key or runs resolve once per key
// across concurrent callers and caches its result.  Cache failures degrade to
// a direct resolve; hit reports whether the result came from Redis.
func (c *ResultCache) GetOrResolve(ctx context.Context, key string,
	resolve func(ctx context.Context) (*entity.Result, error)) (res *entity.Result, hit bool, err error) {
	res, err = c.Get(ctx, key)
	if err == nil {
		return res, true, nil
	}
	if err != ErrCacheMiss {
		c.logger.Warn("cache read failed, resolving directly", logging.String("key", key), logging.Err(err))
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		r, rerr := resolve(ctx)
		if rerr != nil {
			return nil, rerr
		}
		if serr := c.Set(ctx, key, r); serr != nil {
			c.logger.Warn("failed to populate cache", logging.String("key", key), logging.Err(serr))
		}
		return r, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*entity.Result), false, nil
}

func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}
