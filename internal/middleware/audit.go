package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/service"
)

// Audit records an activity log entry after each successful mutation on
// the wrapped routes. Writes go through the activity queue and never
// block the response.
func Audit(activity *service.ActivityService, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if activity == nil || c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := Claims(c); ok {
			userID = &claims.UserID
		}

		details := map[string]string{
			"path":       c.FullPath(),
			"method":     c.Request.Method,
			"status":     strconv.Itoa(c.Writer.Status()),
			"latency_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
		}
		activity.RecordWithRequest(userID, action, resource, nil, details, c.ClientIP(), c.GetHeader("User-Agent"))
	}
}
