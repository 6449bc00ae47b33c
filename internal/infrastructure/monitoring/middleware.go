package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RouteKey is the gin context key handlers use to publish a bounded route
// label. Requests that never set it are recorded as "unmatched".
const RouteKey = "monitoring.route"

// BodySizeKey is the gin context key for the buffered request body size.
const BodySizeKey = "monitoring.body_size"

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := methodLabel(c.Request.Method)

		// Process request
		c.Next()

		route := c.GetString(RouteKey)
		if route == "" {
			route = "unmatched"
		}
		reqSize := c.GetInt64(BodySizeKey)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, route, status, time.Since(start), reqSize, respSize)
	}
}

// methodLabel bounds the method label; clients choose the method freely.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead, http.MethodOptions:
		return method
	default:
		return "other"
	}
}

// Timer measures lifecycle operation duration
type Timer struct {
	start     time.Time
	metrics   *Metrics
	operation string
}

// NewTimer creates a new timer. A nil metrics collector yields a no-op timer.
func NewTimer(metrics *Metrics, operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		operation: operation,
	}
}

// Stop stops the timer and records the duration with the result code
func (t *Timer) Stop(code int) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordOperation(t.operation, code, time.Since(t.start))
}
