package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
)

func TestNewServer(t *testing.T) {
	s := NewServer(config.ServerConfig{Port: 8080, ReadTimeout: 10 * time.Second}, http.NewServeMux(), nil)
	assert.Equal(t, ":8080", s.srv.Addr)
	assert.Equal(t, 10*time.Second, s.srv.ReadTimeout)
	assert.Equal(t, 30*time.Second, s.shutdownTimeout)
	assert.NotNil(t, s.Handler())
}

func TestServer_ServeAndStop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})
	s := NewServer(config.ServerConfig{ShutdownTimeout: time.Second}, mux, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
