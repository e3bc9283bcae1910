package rest

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simaogato/dealflow-backend/internal/auth"
)

// NewRouter wires the public probes and the authenticated /v1 API
func NewRouter(h *Handler, jwtManager *auth.JWTManager, gatherer prometheus.Gatherer, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	r.GET("/healthz", h.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(jwtManager))
	{
		v1.POST("/deals", h.ScheduleDeal)
		v1.GET("/deals/:id", h.GetDealSummary)
		v1.PATCH("/deals/:id", h.UpdateDeal)
		v1.PUT("/deals/:id/templates", h.ReplaceTemplates)
		v1.POST("/deals/:id/recompute", h.RecomputeForDealChange)

		v1.PUT("/payments/:id/override", h.OverridePaymentAmount)
		v1.DELETE("/payments/:id/override", h.ClearPaymentOverride)
	}

	return r
}
