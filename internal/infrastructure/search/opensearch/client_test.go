package opensearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

func newTestServer(statusCode int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	}))
}

func newTestConfig(addr string) ClientConfig {
	return ClientConfig{
		Addresses:      []string{addr},
		MaxRetries:     1,
		RetryBackoff:   time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}
}

// newTestClient builds a Client against serverURL without the startup ping.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	cfg := newTestConfig(serverURL)
	applyClientDefaults(&cfg)
	api, err := newAPIClient(cfg)
	require.NoError(t, err)
	return newClientWithAPI(api, cfg, logging.NewNopLogger())
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		cfg     ClientConfig
		wantErr string
	}{
		{"valid", ClientConfig{Addresses: []string{"http://localhost:9200"}, RequestTimeout: time.Second}, ""},
		{"no addresses", ClientConfig{RequestTimeout: time.Second}, "invalid configuration"},
		{"negative retries", ClientConfig{Addresses: []string{"http://x"}, MaxRetries: -1, RequestTimeout: time.Second}, "MaxRetries must be >= 0"},
		{"zero timeout", ClientConfig{Addresses: []string{"http://x"}}, "RequestTimeout must be > 0"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateConfig(tc.cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestClientConfigFrom(t *testing.T) {
	cfg := ClientConfigFrom(config.OpenSearchConfig{
		Addresses:          []string{"https://search:9200"},
		User:               "admin",
		Password:           "secret",
		InsecureSkipVerify: true,
	})
	assert.Equal(t, []string{"https://search:9200"}, cfg.Addresses)
	assert.Equal(t, "admin", cfg.Username)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestNewClient_Success(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(newTestConfig(server.URL), nil)
	require.NoError(t, err)
	defer client.Close()
	assert.True(t, client.IsHealthy())
	assert.NotNil(t, client.API())
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	server := newTestServer(http.StatusServiceUnavailable)
	defer server.Close()

	client, err := NewClient(newTestConfig(server.URL), nil)
	assert.Nil(t, client)
	assert.True(t, errors.Is(err, ErrConnectionFailed) || pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	client, err := NewClient(ClientConfig{}, nil)
	assert.Nil(t, client)
	assert.Equal(t, ErrInvalidConfig, err)
}

func TestClient_Ping_TracksHealth(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.HealthCheck(context.Background()))
	assert.True(t, client.IsHealthy())

	failing.Store(true)
	assert.Error(t, client.Ping(context.Background()))
	assert.False(t, client.IsHealthy())

	failing.Store(false)
	assert.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsHealthy())
}

func TestClient_Close_Idempotent(t *testing.T) {
	server := newTestServer(http.StatusOK)
	defer server.Close()

	client, err := NewClient(newTestConfig(server.URL), nil)
	require.NoError(t, err)
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

//Personal.AI order the ending
