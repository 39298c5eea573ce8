package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/afterschool-roster-api/internal/service"
)

// Probe endpoints are scraped every few seconds and would drown out real traffic.
var unmeasuredRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics records request count and latency per route template. Requests that match no route
// share one "unmatched" label so scanners cannot blow up label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, skip := unmeasuredRoutes[route]; skip {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
