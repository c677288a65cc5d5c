package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
)

// DocumentHandler reads persisted results back.
type DocumentHandler struct {
	svc resolution.Service
}

func NewDocumentHandler(svc resolution.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id", h.Get)
}

// Get handles GET /api/v1/documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.svc.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, doc)
}

//Personal.AI order the ending
