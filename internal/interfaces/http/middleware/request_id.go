package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

const contextKeyRequestID = "request_id"

// RequestID accepts a client supplied X-Request-ID or generates one, echoes
// it on the response and stores a request-scoped logger in the request
// context.
func RequestID(logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)

		ctx := logging.WithContext(c.Request.Context(), logger.With(logging.RequestID(id)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
