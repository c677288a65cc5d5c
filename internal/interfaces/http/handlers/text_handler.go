package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TextCleaner normalises raw extracted text.
type TextCleaner interface {
	Clean(text string) string
}

// TextHandler exposes the text cleaning step on its own, for callers that
// tag tokens themselves and need the exact text the offsets refer to.
type TextHandler struct {
	cleaner TextCleaner
}

func NewTextHandler(cleaner TextCleaner) *TextHandler {
	return &TextHandler{cleaner: cleaner}
}

// TextRequest is the body of POST /text/clean.
type TextRequest struct {
	Text string `json:"text"`
}

// TextResponse carries the cleaned text.
type TextResponse struct {
	Text  string `json:"text"`
	Runes int    `json:"runes"`
}

func (h *TextHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/text/clean", h.Clean)
}

// Clean handles POST /api/v1/text/clean.
func (h *TextHandler) Clean(c *gin.Context) {
	var req TextRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	out := h.cleaner.Clean(req.Text)
	respond(c, http.StatusOK, TextResponse{Text: out, Runes: len([]rune(out))})
}
