// Package grpc serves the standard grpc.health.v1 service so orchestrators
// that speak gRPC probes can watch the API server.  Serving status follows
// the same dependency checks as /readyz.
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
)

// ServiceName is the health service name reported for the resolver.  The
// empty name carries the same status.
const ServiceName = "legaldoc.v1.EntityResolver"

const (
	defaultMaxRecvMsgSize  = 4 * 1024 * 1024
	defaultGracefulTimeout = 10 * time.Second
	defaultProbeInterval   = 10 * time.Second
	defaultProbeTimeout    = 3 * time.Second
)

var defaultKeepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAge:      30 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               1 * time.Second,
}

var defaultKeepalivePolicy = keepalive.EnforcementPolicy{
	MinTime:             5 * time.Second,
	PermitWithoutStream: true,
}

// Checker is a dependency probe.  handlers.HealthChecker satisfies it.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Option configures the gRPC Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger          logging.Logger
	metrics         *prometheus.AppMetrics
	tlsConfig       *tls.Config
	maxRecvMsgSize  int
	keepaliveParams keepalive.ServerParameters
	gracefulTimeout time.Duration
	probeInterval   time.Duration
	probeTimeout    time.Duration
	reflection      bool
	checkers        []Checker
}

func WithLogger(l logging.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(o *serverOptions) { o.metrics = m }
}

func WithTLSConfig(tc *tls.Config) Option {
	return func(o *serverOptions) { o.tlsConfig = tc }
}

// WithMaxRecvMsgSize sets the maximum receive message size in bytes.
func WithMaxRecvMsgSize(size int) Option {
	return func(o *serverOptions) {
		if size > 0 {
			o.maxRecvMsgSize = size
		}
	}
}

func WithKeepaliveParams(params keepalive.ServerParameters) Option {
	return func(o *serverOptions) { o.keepaliveParams = params }
}

// WithGracefulTimeout bounds how long Stop waits for in-flight RPCs.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// WithCheckers sets the dependencies probed every interval.  Any failing
// checker turns the service NOT_SERVING until it recovers.
func WithCheckers(interval time.Duration, checkers ...Checker) Option {
	return func(o *serverOptions) {
		if interval > 0 {
			o.probeInterval = interval
		}
		o.checkers = checkers
	}
}

// WithReflection registers the reflection service; intended for debug mode.
func WithReflection(enabled bool) Option {
	return func(o *serverOptions) { o.reflection = enabled }
}

// Server wraps a grpc.Server exposing health checking with graceful shutdown.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	opts         *serverOptions
	healthServer *health.Server

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	probeWG sync.WaitGroup
}

// NewServer binds addr (":0" picks a free port) and registers the health
// service.
func NewServer(addr string, opts ...Option) (*Server, error) {
	sopts := &serverOptions{
		maxRecvMsgSize:  defaultMaxRecvMsgSize,
		keepaliveParams: defaultKeepaliveParams,
		gracefulTimeout: defaultGracefulTimeout,
		probeInterval:   defaultProbeInterval,
		probeTimeout:    defaultProbeTimeout,
	}
	for _, o := range opts {
		o(sopts)
	}
	if sopts.logger == nil {
		sopts.logger = logging.NewNopLogger()
	}
	sopts.logger = sopts.logger.Named("grpc")

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcOpts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(sopts.maxRecvMsgSize),
		grpc.KeepaliveParams(sopts.keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(defaultKeepalivePolicy),
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(sopts.logger),
			loggingUnaryInterceptor(sopts.logger),
			metricsUnaryInterceptor(sopts.metrics),
		),
		grpc.ChainStreamInterceptor(
			recoveryStreamInterceptor(sopts.logger),
		),
	}
	if sopts.tlsConfig != nil {
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(sopts.tlsConfig)))
	}

	gs := grpc.NewServer(grpcOpts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	if sopts.reflection {
		reflection.Register(gs)
		sopts.logger.Info("grpc reflection service registered")
	}

	return &Server{
		grpcServer:   gs,
		listener:     lis,
		opts:         sopts,
		healthServer: hs,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start serves until Stop.  Configured checkers are probed once before the
// first connection is accepted and then on every interval.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	if len(s.opts.checkers) > 0 {
		s.probe(context.Background())
		s.probeWG.Add(1)
		go s.probeLoop()
	}

	s.opts.logger.Info("grpc server listening", logging.String("addr", s.listener.Addr().String()))
	return s.grpcServer.Serve(s.listener)
}

func (s *Server) probeLoop() {
	defer s.probeWG.Done()
	ticker := time.NewTicker(s.opts.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.probe(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// probe runs every checker and publishes the aggregate serving status.
func (s *Server) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.probeTimeout)
	defer cancel()

	serving := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.opts.checkers {
		err := c.Check(ctx)
		if s.opts.metrics != nil {
			prometheus.SetHealth(s.opts.metrics, c.Name(), err == nil)
		}
		if err != nil {
			serving = healthpb.HealthCheckResponse_NOT_SERVING
			s.opts.logger.Warn("dependency unhealthy", logging.String("component", c.Name()), logging.Err(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.healthServer.SetServingStatus("", serving)
	s.healthServer.SetServingStatus(ServiceName, serving)
}

// Stop marks every service NOT_SERVING, then drains RPCs for at most the
// graceful timeout before forcing the stop.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()
	s.probeWG.Wait()

	s.opts.logger.Info("grpc server stopping")
	s.healthServer.Shutdown()

	gracefulCtx, cancel := context.WithTimeout(ctx, s.opts.gracefulTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.opts.logger.Info("grpc server stopped")
	case <-gracefulCtx.Done():
		s.opts.logger.Warn("grpc graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}

// Addr returns the bound address, useful after listening on port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// ---------------------------------------------------------------------------
// Interceptors
// ---------------------------------------------------------------------------

func recoveryUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprintf("%v", r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc stream panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprintf("%v", r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

func isHealthCheck(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

// loggingUnaryInterceptor logs every RPC except health probes, which arrive
// every few seconds.
func loggingUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			logging.String("method", info.FullMethod),
			logging.Int64("duration_ms", time.Since(start).Milliseconds()),
			logging.String("code", status.Code(err).String()),
		)
		return resp, err
	}
}

func metricsUnaryInterceptor(m *prometheus.AppMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if m == nil {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		prometheus.RecordGRPCRequest(m, info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

//Personal.AI order the ending
