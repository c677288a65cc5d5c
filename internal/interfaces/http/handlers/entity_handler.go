package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/middleware"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// DefaultMaxBatchSize caps the documents accepted by one batch request.
const DefaultMaxBatchSize = 100

// EntityHandler serves resolution, search and mention lookups.
type EntityHandler struct {
	svc          resolution.Service
	logger       logging.Logger
	maxBatchSize int
}

// NewEntityHandler creates a new EntityHandler.
func NewEntityHandler(svc resolution.Service, logger logging.Logger, maxBatchSize int) *EntityHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &EntityHandler{svc: svc, logger: logger, maxBatchSize: maxBatchSize}
}

// BatchRequest is the body of POST /entities/resolve/batch.
type BatchRequest struct {
	Documents []*entity.Document `json:"documents"`
}

// RegisterRoutes mounts the entity routes on an /api/v1 group.
func (h *EntityHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/entities")
	g.POST("/resolve", h.Resolve)
	g.POST("/resolve/batch", h.ResolveBatch)
	g.GET("/search", h.Search)
	g.GET("/mentions", h.Mentions)
}

// Resolve handles POST /api/v1/entities/resolve.  The body is a document;
// documents without an ID are assigned one.  Query flags: explain, dry_run,
// no_cache.
func (h *EntityHandler) Resolve(c *gin.Context) {
	var doc entity.Document
	if err := bindJSON(c, &doc); err != nil {
		respondError(c, err)
		return
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	out, err := h.svc.Resolve(c.Request.Context(), &resolution.ResolveInput{
		Document: &doc,
		Explain:  queryBool(c, "explain"),
		NoCache:  queryBool(c, "no_cache"),
		DryRun:   queryBool(c, "dry_run"),
		TraceID:  middleware.GetRequestID(c),
	})
	if err != nil && out == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		// The result exists; only its publication failed.
		logging.FromContext(c.Request.Context(), h.logger).Warn("result not published",
			logging.DocumentID(doc.ID), logging.Err(err))
	}
	respond(c, http.StatusOK, out)
}

// ResolveBatch handles POST /api/v1/entities/resolve/batch.  Per-document
// failures are reported in the items; the response is 200 unless the request
// itself is invalid.
func (h *EntityHandler) ResolveBatch(c *gin.Context) {
	var req BatchRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if len(req.Documents) > h.maxBatchSize {
		respondError(c, errors.Newf(errors.ErrCodeValidation, "batch of %d documents exceeds the limit of %d",
			len(req.Documents), h.maxBatchSize))
		return
	}
	for i, d := range req.Documents {
		if d == nil {
			respondError(c, errors.Newf(errors.ErrCodeValidation, "document %d is null", i))
			return
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
	}

	out, err := h.svc.ResolveBatch(c.Request.Context(), &resolution.BatchInput{
		Documents: req.Documents,
		DryRun:    queryBool(c, "dry_run"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

// Search handles GET /api/v1/entities/search?text=&label=&offset=&limit=.
func (h *EntityHandler) Search(c *gin.Context) {
	offset, err := queryInt(c, "offset")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.svc.SearchEntities(c.Request.Context(), &resolution.SearchInput{
		Text:   c.Query("text"),
		Label:  c.Query("label"),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// Mentions handles GET /api/v1/entities/mentions?label=&text=&limit=.
func (h *EntityHandler) Mentions(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := h.svc.FindMentions(c.Request.Context(), &resolution.MentionInput{
		Label: c.Query("label"),
		Text:  c.Query("text"),
		Limit: limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}
