package rest

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simaogato/dealflow-backend/internal/auth"
)

// AuthMiddleware requires a valid bearer JWT and stores its subject as the actor
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := jwtManager.ValidateHeader(c.GetHeader("Authorization"))
		if err != nil {
			message := "Invalid or expired token"
			if errors.Is(err, auth.ErrMissingToken) {
				message = "Authorization token not provided"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		c.Request = c.Request.WithContext(auth.WithActor(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

// RequestLogger logs each request once it has been handled
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"actor", auth.ActorFrom(c.Request.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP error", append(attrs, "error", c.Errors.String())...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP error", append(attrs, "error", c.Errors.String())...)
		default:
			logger.Info("HTTP ok", attrs...)
		}
	}
}
