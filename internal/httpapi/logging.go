package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (h *Handler) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		var hospitalID string
		if claims, ok := claimsFromContext(c); ok {
			hospitalID = claims.HospitalID
		}
		status := c.Writer.Status()
		event := h.logger.Info()
		if status >= 500 {
			event = h.logger.Error()
		} else if status >= 400 {
			event = h.logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("request_id", requestID(c)).
			Str("hospital_id", hospitalID).
			Msg("request")
	}
}
