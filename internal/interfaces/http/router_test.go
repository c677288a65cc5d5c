package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/auth"
	er "github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/textclean"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type routerFixture struct {
	router  *gin.Engine
	limiter *middleware.TokenBucketLimiter
}

func newRouterFixture(t *testing.T, burst int, maxBody int64) routerFixture {
	t.Helper()
	engine := er.NewEngine(er.NewTableStore(er.DefaultTables()), er.DefaultEngineConfig())
	svc := resolution.NewService(engine, resolution.DefaultConfig(), nil)

	col, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "legaldoc_router_test"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(col)

	limiter := middleware.NewTokenBucketLimiter(0.001, burst, 0)
	t.Cleanup(limiter.Stop)

	r := NewRouter(RouterConfig{
		EntityHandler:   handlers.NewEntityHandler(svc, nil, 10),
		DocumentHandler: handlers.NewDocumentHandler(svc),
		TextHandler:     handlers.NewTextHandler(textclean.New(textclean.DefaultOptions())),
		HealthHandler: handlers.NewHealthHandler("test", metrics,
			handlers.NewChecker("tables", func(context.Context) error { return nil })),
		RateLimiter:      limiter,
		MaxBodySize:      maxBody,
		Logging:          middleware.DefaultLoggingConfig(),
		Metrics:          metrics,
		MetricsCollector: col,
	})
	return routerFixture{router: r, limiter: limiter}
}

func (f routerFixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestNewRouter_Routes(t *testing.T) {
	f := newRouterFixture(t, 100, 1<<20)

	registered := map[string]bool{}
	for _, ri := range f.router.Routes() {
		registered[ri.Method+" "+ri.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /readyz",
		"GET /metrics",
		"POST /api/v1/entities/resolve",
		"POST /api/v1/entities/resolve/batch",
		"GET /api/v1/entities/search",
		"GET /api/v1/entities/mentions",
		"GET /api/v1/documents/:id",
		"POST /api/v1/text/clean",
	} {
		assert.True(t, registered[want], "route %s not registered", want)
	}
}

func TestNewRouter_ResolveEndToEnd(t *testing.T) {
	f := newRouterFixture(t, 100, 1<<20)

	body := `{"id":"doc-1","text":"Ông Nguyễn Văn An","tokens":[` +
		`{"text":"Ông","tag":"O"},{"text":"Nguyễn","tag":"B-PER"},{"text":"Văn","tag":"I-PER"},{"text":"An","tag":"I-PER"}]}`
	w := f.do(http.MethodPost, "/api/v1/entities/resolve", body, map[string]string{middleware.HeaderRequestID: "trace-42"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "trace-42", w.Header().Get(middleware.HeaderRequestID))
	assert.Contains(t, w.Body.String(), `"label":"PERSON"`)
	assert.Contains(t, w.Body.String(), `"request_id":"trace-42"`)

	// optional backends are not configured
	w = f.do(http.MethodGet, "/api/v1/documents/doc-1", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/api/v1/entities/resolve"`)
}

func TestNewRouter_RateLimitScopedToAPI(t *testing.T) {
	f := newRouterFixture(t, 1, 1<<20)

	w := f.do(http.MethodPost, "/api/v1/text/clean", `{"text":"a"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, "/api/v1/text/clean", `{"text":"a"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		w = f.do(http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w = f.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_BodyLimit(t *testing.T) {
	f := newRouterFixture(t, 100, 64)

	w := f.do(http.MethodPost, "/api/v1/text/clean", `{"text":"`+strings.Repeat("a", 200)+`"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), `"NER_004"`)
}

func TestNewRouter_MethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t, 100, 1<<20)

	w := f.do(http.MethodGet, "/api/v1/entities/resolve", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = f.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_NilHandlers(t *testing.T) {
	assert.NotPanics(t, func() {
		r := NewRouter(RouterConfig{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

//Personal.AI order the ending

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

func TestRoutePermissions_CoverAPI(t *testing.T) {
	f := newRouterFixture(t, 100, 1<<20)
	for _, ri := range f.router.Routes() {
		if !strings.HasPrefix(ri.Path, "/api/v1/") {
			continue
		}
		_, ok := RoutePermissions[ri.Path]
		assert.True(t, ok, "no permission for %s %s", ri.Method, ri.Path)
	}
}

func TestNewRouter_Auth(t *testing.T) {
	const secret = "router-test"
	verifier, err := auth.NewVerifier(context.Background(), auth.Config{HMACSecret: secret}, nil)
	require.NoError(t, err)

	engine := er.NewEngine(er.NewTableStore(er.DefaultTables()), er.DefaultEngineConfig())
	svc := resolution.NewService(engine, resolution.DefaultConfig(), nil)
	f := routerFixture{router: NewRouter(RouterConfig{
		EntityHandler: handlers.NewEntityHandler(svc, nil, 10),
		TextHandler:   handlers.NewTextHandler(textclean.New(textclean.DefaultOptions())),
		HealthHandler: handlers.NewHealthHandler("test", nil),
		Verifier:      verifier,
	})}

	token := func(roles ...string) map[string]string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   "u",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"roles": roles,
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		return map[string]string{"Authorization": "Bearer " + s}
	}

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code)

	clean := `{"text":"Hà  Nội"}`
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/v1/text/clean", clean, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/text/clean", clean, token("legaldoc-reader")).Code)

	doc := `{"id":"d","text":"Hà Nội","tokens":[]}`
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/entities/resolve", doc, token("legaldoc-reader")).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/entities/resolve", doc, token("legaldoc-resolver")).Code)
}
