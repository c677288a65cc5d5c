package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
)

// minMissRefresh bounds how often an unknown kid may trigger a refetch.
const minMissRefresh = 30 * time.Second

// Fetcher returns the raw JWKS document.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

type jwksCache struct {
	url    string
	fetch  Fetcher
	logger logging.Logger
	now    func() time.Time

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKSCache(url string, logger logging.Logger) *jwksCache {
	return &jwksCache{
		url:    url,
		fetch:  httpFetch(&http.Client{Timeout: 10 * time.Second}),
		logger: logger,
		now:    time.Now,
		keys:   map[string]*rsa.PublicKey{},
	}
}

func httpFetch(client *http.Client) Fetcher {
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch JWKS: %s", resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	}
}

func (c *jwksCache) refresh(ctx context.Context) error {
	body, err := c.fetch(ctx, c.url)
	if err != nil {
		return err
	}
	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaKey()
		if err != nil {
			c.logger.Warn("skipping jwk", logging.String("kid", k.Kid), logging.Err(err))
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.lastRefresh = c.now()
	c.mu.Unlock()
	c.logger.Debug("jwks refreshed", logging.Int("keys", len(keys)))
	return nil
}

func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	pub, ok := c.keys[kid]
	stale := c.now().Sub(c.lastRefresh) >= minMissRefresh
	c.mu.RUnlock()
	if ok {
		return pub, nil
	}
	if !stale {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	// key rotation: the signer may already use a key we have not seen
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if pub, ok := c.keys[kid]; ok {
		return pub, nil
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

func (k jsonWebKey) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := 0
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	if exp == 0 {
		return nil, fmt.Errorf("exponent is zero")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}
