package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/auth"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	EntityHandler   *handlers.EntityHandler
	DocumentHandler *handlers.DocumentHandler
	TextHandler     *handlers.TextHandler
	HealthHandler   *handlers.HealthHandler

	// Middleware
	CORSOrigins []string
	RateLimiter middleware.RateLimiter
	// Verifier enables bearer-token auth on the API v1 group when non-nil.
	Verifier    auth.Verifier
	MaxBodySize int64
	Logging     middleware.LoggingConfig

	// Infrastructure
	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
}

// NewRouter constructs the complete HTTP route tree.  Probes and /metrics are
// outside the rate limit; the API v1 group is inside it.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	// --- Global middleware (applied to every request) ---
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	// --- Public health endpoints ---
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	// --- API v1 ---
	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	if cfg.Verifier != nil {
		api.Use(middleware.Authenticate(cfg.Verifier, cfg.Logger), middleware.Authorize(RoutePermissions))
	}
	if cfg.MaxBodySize > 0 {
		api.Use(limitBody(cfg.MaxBodySize))
	}
	if cfg.EntityHandler != nil {
		cfg.EntityHandler.RegisterRoutes(api)
	}
	if cfg.DocumentHandler != nil {
		cfg.DocumentHandler.RegisterRoutes(api)
	}
	if cfg.TextHandler != nil {
		cfg.TextHandler.RegisterRoutes(api)
	}

	return r
}

// RoutePermissions maps every API v1 route to the permission it requires.
var RoutePermissions = map[string]auth.Permission{
	"/api/v1/entities/resolve":       auth.PermEntitiesResolve,
	"/api/v1/entities/resolve/batch": auth.PermEntitiesResolve,
	"/api/v1/entities/search":        auth.PermEntitiesRead,
	"/api/v1/entities/mentions":      auth.PermEntitiesRead,
	"/api/v1/documents/:id":          auth.PermDocumentsRead,
	"/api/v1/text/clean":             auth.PermTextClean,
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
