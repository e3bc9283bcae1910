// Package rest is the HTTP JSON gateway over the recompute engine.
package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simaogato/dealflow-backend/internal/adapter/presenter"
	"github.com/simaogato/dealflow-backend/internal/auth"
	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/recalc"
	"github.com/simaogato/dealflow-backend/internal/usecase/summary"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP routes
type Handler struct {
	Orchestrator *recalc.Orchestrator
	Summary      *summary.Service
	Store        Pinger
}

// NewHandler creates a new Handler instance
func NewHandler(orchestrator *recalc.Orchestrator, summaryService *summary.Service, store Pinger) *Handler {
	return &Handler{
		Orchestrator: orchestrator,
		Summary:      summaryService,
		Store:        store,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(c *gin.Context) {
	if h.Store != nil {
		if err := h.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ScheduleDeal handles POST /v1/deals
func (h *Handler) ScheduleDeal(c *gin.Context) {
	var in presenter.DealInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	deal, templates, err := in.ToDomain()
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.Orchestrator.ScheduleDeal(c.Request.Context(), deal, templates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, presenter.FromResult(result))
}

// GetDealSummary handles GET /v1/deals/:id
func (h *Handler) GetDealSummary(c *gin.Context) {
	dealID, err := presenter.ParseID("deal id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.Summary.GetDealSummary(c.Request.Context(), dealID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presenter.FromSummary(result))
}

// UpdateDeal handles PATCH /v1/deals/:id
func (h *Handler) UpdateDeal(c *gin.Context) {
	dealID, err := presenter.ParseID("deal id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	var patch presenter.DealPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	update, err := patch.ToUpdate(dealID)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.Orchestrator.UpdateDeal(c.Request.Context(), update)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presenter.FromResult(result))
}

// ReplaceTemplates handles PUT /v1/deals/:id/templates
func (h *Handler) ReplaceTemplates(c *gin.Context) {
	dealID, err := presenter.ParseID("deal id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	var in presenter.TemplatesInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	templates, err := presenter.ToTemplates(in.Templates)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.Orchestrator.ReplaceTemplates(c.Request.Context(), dealID, templates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presenter.FromResult(result))
}

// RecomputeForDealChange handles POST /v1/deals/:id/recompute.
// The body is optional; without changed_fields every field is treated as changed.
func (h *Handler) RecomputeForDealChange(c *gin.Context) {
	dealID, err := presenter.ParseID("deal id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req presenter.RecomputeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
			return
		}
	}

	changed := domain.AllDealFields
	if len(req.ChangedFields) > 0 {
		if changed, err = domain.ParseDealFields(req.ChangedFields); err != nil {
			writeError(c, err)
			return
		}
	}

	result, err := h.Orchestrator.RecomputeForDealChange(c.Request.Context(), dealID, changed)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presenter.FromResult(result))
}

// OverridePaymentAmount handles PUT /v1/payments/:id/override
func (h *Handler) OverridePaymentAmount(c *gin.Context) {
	paymentID, err := presenter.ParseID("payment id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req presenter.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	amount, err := presenter.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := h.Orchestrator.OverridePaymentAmount(ctx, paymentID, amount, auth.ActorFrom(ctx))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presenter.FromResult(result))
}

// ClearPaymentOverride handles DELETE /v1/payments/:id/override
func (h *Handler) ClearPaymentOverride(c *gin.Context) {
	paymentID, err := presenter.ParseID("payment id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.Orchestrator.ClearPaymentOverride(c.Request.Context(), paymentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, presenter.FromResult(result))
}

// writeError maps domain errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPercentage),
		errors.Is(err, domain.ErrInvalidPaymentCount),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrMissingActor),
		errors.Is(err, domain.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		domain.IsRetryable(err):
		code = http.StatusConflict
	}

	body := gin.H{"error": err.Error()}
	if domain.IsRetryable(err) {
		body["retryable"] = true
	}
	c.JSON(code, body)
}
