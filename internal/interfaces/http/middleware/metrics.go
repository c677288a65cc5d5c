package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request count and latency per route template, so
// /api/v1/documents/:id is one series regardless of the ID.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		active := m.HTTPActiveRequests.WithLabelValues(method)
		active.Inc()
		start := time.Now()
		c.Next()
		active.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prometheus.RecordHTTPRequest(m, method, route, c.Writer.Status(), time.Since(start))
	}
}
