package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// RequestLogger logs information about incoming requests using slog.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		}
		if v, ok := c.Get(ActorContextKey); ok {
			if actor, ok := v.(model.Actor); ok {
				attrs = append(attrs, slog.String("store_id", actor.StoreID), slog.String("user_id", actor.UserID))
			}
		}
		logger.Info("http request", attrs...)
	}
}
