// Common helper functions for HTTP handlers.

package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegalDoc-Intelligence/internal/application/resolution"
	"github.com/turtacn/LegalDoc-Intelligence/internal/interfaces/http/middleware"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/common"
)

// respond writes a successful APIResponse envelope.
func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, common.APIResponse[interface{}]{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(c),
		Timestamp: common.Now(),
	})
}

// respondError maps err to its HTTP status.  Server errors are masked; the
// original is attached to the gin context for the logging middleware.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	detail := resolution.ErrorDetail(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		detail.Message = errors.DefaultMessageForCode(errors.ErrorCode(detail.Code))
		detail.Details = nil
	}
	c.AbortWithStatusJSON(status, common.APIResponse[interface{}]{
		Error:     &detail,
		RequestID: middleware.GetRequestID(c),
		Timestamp: common.Now(),
	})
}

func statusFor(err error) int {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// bindJSON decodes the request body into dst, translating decoder failures
// into AppErrors.
func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.Newf(errors.ErrCodeDocumentTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body").WithDetail(err.Error())
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidParam(name + " must be a non-negative integer")
	}
	return n, nil
}

// queryBool reports whether a flag query parameter is set to a true value.
func queryBool(c *gin.Context, name string) bool {
	b, _ := strconv.ParseBool(c.Query(name))
	return b
}

//Personal.AI order the ending
