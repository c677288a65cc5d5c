package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
	pgrepo "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/textclean"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/middleware"
	pkgerrors "github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/common"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockService is a mock implementation of resolution.Service.
type mockService struct {
	mock.Mock
}

func (m *mockService) Resolve(ctx context.Context, input *resolution.ResolveInput) (*resolution.ResolveOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resolution.ResolveOutput), args.Error(1)
}

func (m *mockService) ResolveBatch(ctx context.Context, input *resolution.BatchInput) (*resolution.BatchOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resolution.BatchOutput), args.Error(1)
}

func (m *mockService) GetDocument(ctx context.Context, id string) (*pgrepo.StoredResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pgrepo.StoredResult), args.Error(1)
}

func (m *mockService) SearchEntities(ctx context.Context, input *resolution.SearchInput) (*opensearch.SearchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*opensearch.SearchResult), args.Error(1)
}

func (m *mockService) FindMentions(ctx context.Context, input *resolution.MentionInput) (*resolution.MentionOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resolution.MentionOutput), args.Error(1)
}

func (m *mockService) HandleMessage(ctx context.Context, msg *common.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type routeRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

func newTestRouter(hs ...routeRegistrar) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(logging.NewNopLogger()))
	api := r.Group("/api/v1")
	for _, h := range hs {
		h.RegisterRoutes(api)
	}
	return r
}

type envelope struct {
	Success   bool                `json:"success"`
	Data      json.RawMessage     `json:"data"`
	Error     *common.ErrorDetail `json:"error"`
	RequestID string              `json:"request_id"`
}

func do(t *testing.T, r http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

const docBody = `{"id":"doc-1","text":"Ông Nguyễn Văn An","tokens":[{"text":"Ông","tag":"O"},{"text":"Nguyễn","tag":"B-PER"},{"text":"Văn","tag":"I-PER"},{"text":"An","tag":"I-PER"}]}`

func sampleOutput(id string) *resolution.ResolveOutput {
	return &resolution.ResolveOutput{Result: &entity.Result{
		DocumentID: id,
		Entities: []entity.Entity{
			{Text: "Nguyễn Văn An", Label: entity.LabelPerson, Start: 4, End: 17, Source: entity.SourceStatistical},
		},
	}}
}

// ─────────────────────────────────────────────────────────────────────────────
// EntityHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestEntityHandler_Resolve(t *testing.T) {
	svc := new(mockService)
	svc.On("Resolve", mock.Anything, mock.MatchedBy(func(in *resolution.ResolveInput) bool {
		return in.Document.ID == "doc-1" && len(in.Document.Tokens) == 4 && in.Explain && !in.DryRun && in.TraceID != ""
	})).Return(sampleOutput("doc-1"), nil).Once()

	r := newTestRouter(NewEntityHandler(svc, nil, 0))
	w, env := do(t, r, http.MethodPost, "/api/v1/entities/resolve?explain=true", docBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, w.Header().Get(middleware.HeaderRequestID), env.RequestID)

	var out resolution.ResolveOutput
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "doc-1", out.Result.DocumentID)
	require.Len(t, out.Result.Entities, 1)
	assert.Equal(t, entity.LabelPerson, out.Result.Entities[0].Label)
	svc.AssertExpectations(t)
}

func TestEntityHandler_Resolve_AssignsID(t *testing.T) {
	svc := new(mockService)
	svc.On("Resolve", mock.Anything, mock.MatchedBy(func(in *resolution.ResolveInput) bool {
		return len(in.Document.ID) == 36 && in.DryRun
	})).Return(sampleOutput("generated"), nil).Once()

	r := newTestRouter(NewEntityHandler(svc, nil, 0))
	w, _ := do(t, r, http.MethodPost, "/api/v1/entities/resolve?dry_run=1", `{"text":"x","tokens":[]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_Resolve_Errors(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		svcOut     *resolution.ResolveOutput
		svcErr     error
		wantStatus int
		wantCode   pkgerrors.ErrorCode
		wantMsg    string
	}{
		{"malformed body", `{"text":`, nil, nil, http.StatusBadRequest, pkgerrors.ErrCodeBadRequest, "invalid request body"},
		{"invalid offsets", docBody, nil, pkgerrors.InvalidOffset(10, 4, 17), http.StatusBadRequest, pkgerrors.ErrCodeInvalidOffset, ""},
		{"too large", docBody, nil, pkgerrors.New(pkgerrors.ErrCodeDocumentTooLarge, "document too large"), http.StatusRequestEntityTooLarge, pkgerrors.ErrCodeDocumentTooLarge, "document too large"},
		{"internal error masked", docBody, nil, errors.New("pq: connection reset"), http.StatusInternalServerError, pkgerrors.ErrCodeInternal, "internal server error"},
		{"publish failure still returns result", docBody, sampleOutput("doc-1"), pkgerrors.New(pkgerrors.ErrCodeMessaging, "failed to publish result"), http.StatusOK, "", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := new(mockService)
			if tc.svcOut != nil {
				svc.On("Resolve", mock.Anything, mock.Anything).Return(tc.svcOut, tc.svcErr)
			} else {
				svc.On("Resolve", mock.Anything, mock.Anything).Return(nil, tc.svcErr)
			}

			r := newTestRouter(NewEntityHandler(svc, nil, 0))
			w, env := do(t, r, http.MethodPost, "/api/v1/entities/resolve", tc.body)
			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantCode == "" {
				assert.True(t, env.Success)
				return
			}
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tc.wantCode), env.Error.Code)
			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, env.Error.Message)
			}
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestEntityHandler_ResolveBatch(t *testing.T) {
	svc := new(mockService)
	svc.On("ResolveBatch", mock.Anything, mock.MatchedBy(func(in *resolution.BatchInput) bool {
		return len(in.Documents) == 2 && in.Documents[0].ID == "doc-1" && in.Documents[1].ID != ""
	})).Return(&resolution.BatchOutput{
		Items:     []resolution.BatchItem{{Index: 0, Output: sampleOutput("doc-1")}, {Index: 1, Error: &common.ErrorDetail{Code: "NER_004"}}},
		Succeeded: 1,
		Failed:    1,
	}, nil).Once()

	r := newTestRouter(NewEntityHandler(svc, nil, 2))
	w, env := do(t, r, http.MethodPost, "/api/v1/entities/resolve/batch",
		`{"documents":[`+docBody+`,{"text":"x","tokens":[]}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var out resolution.BatchOutput
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, "NER_004", out.Items[1].Error.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_ResolveBatch_Rejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"over limit", `{"documents":[{"text":"a"},{"text":"b"},{"text":"c"}]}`},
		{"null document", `{"documents":[null]}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := new(mockService)
			r := newTestRouter(NewEntityHandler(svc, nil, 2))
			w, env := do(t, r, http.MethodPost, "/api/v1/entities/resolve/batch", tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Equal(t, string(pkgerrors.ErrCodeValidation), env.Error.Code)
			svc.AssertNotCalled(t, "ResolveBatch", mock.Anything, mock.Anything)
		})
	}
}

func TestEntityHandler_Search(t *testing.T) {
	svc := new(mockService)
	svc.On("SearchEntities", mock.Anything, &resolution.SearchInput{Text: "văn an", Label: "PERSON", Offset: 10, Limit: 5}).
		Return(&opensearch.SearchResult{Total: 3}, nil).Once()

	r := newTestRouter(NewEntityHandler(svc, nil, 0))
	w, env := do(t, r, http.MethodGet, "/api/v1/entities/search?text=v%C4%83n+an&label=PERSON&offset=10&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":3,"hits":null,"took_ms":0}`, string(env.Data))

	w, env = do(t, r, http.MethodGet, "/api/v1/entities/search?text=a&limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error.Message, "limit")
}

func TestEntityHandler_Mentions(t *testing.T) {
	svc := new(mockService)
	svc.On("FindMentions", mock.Anything, &resolution.MentionInput{Label: "ORGANIZATION", Text: "Bộ Tư pháp", Limit: 0}).
		Return(&resolution.MentionOutput{Documents: []string{"doc-1"}}, nil).Once()
	svc.On("FindMentions", mock.Anything, &resolution.MentionInput{Label: "PERSON"}).
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeFeatureDisabled, "no mention backend is configured")).Once()

	r := newTestRouter(NewEntityHandler(svc, nil, 0))
	w, env := do(t, r, http.MethodGet, "/api/v1/entities/mentions?label=ORGANIZATION&text=B%E1%BB%99+T%C6%B0+ph%C3%A1p", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"doc-1"`)

	w, _ = do(t, r, http.MethodGet, "/api/v1/entities/mentions?label=PERSON", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// DocumentHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestDocumentHandler_Get(t *testing.T) {
	svc := new(mockService)
	svc.On("GetDocument", mock.Anything, "doc-1").
		Return(&pgrepo.StoredResult{Result: entity.Result{DocumentID: "doc-1", Sentences: 2}}, nil)
	svc.On("GetDocument", mock.Anything, "missing").Return(nil, pkgerrors.NotFound("document not found"))

	r := newTestRouter(NewDocumentHandler(svc))
	w, env := do(t, r, http.MethodGet, "/api/v1/documents/doc-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"sentences":2`)

	w, env = do(t, r, http.MethodGet, "/api/v1/documents/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "document not found", env.Error.Message)
}

// ─────────────────────────────────────────────────────────────────────────────
// TextHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestTextHandler_Clean(t *testing.T) {
	r := newTestRouter(NewTextHandler(textclean.New(textclean.DefaultOptions())))
	w, env := do(t, r, http.MethodPost, "/api/v1/text/clean", `{"text":"Bộ   Giáo\t\tdục"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var out TextResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "Bộ Giáo dục", out.Text)
	assert.Equal(t, 11, out.Runes)
}

// ─────────────────────────────────────────────────────────────────────────────
// HealthHandler
// ─────────────────────────────────────────────────────────────────────────────

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name       string
		checkers   []HealthChecker
		wantStatus int
		wantState  string
	}{
		{"no dependencies", nil, http.StatusOK, "up"},
		{"all up", []HealthChecker{NewChecker("redis", func(context.Context) error { return nil })}, http.StatusOK, "up"},
		{"one down", []HealthChecker{
			NewChecker("redis", func(context.Context) error { return nil }),
			NewChecker("postgres", func(context.Context) error { return errors.New("connection refused") }),
		}, http.StatusServiceUnavailable, "down"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := NewHealthHandler("1.2.3", nil, tc.checkers...)
			r := gin.New()
			h.RegisterRoutes(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tc.wantStatus, w.Code)

			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantState, string(resp.Status))
			assert.Len(t, resp.Components, len(tc.checkers))

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
		})
	}
}

//Personal.AI order the ending
