package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bprnd-credit-api/internal/middleware"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
	"github.com/noah-isme/bprnd-credit-api/pkg/response"
)

type claimAnalytics interface {
	Analytics(ctx context.Context) (*models.ClaimAnalytics, error)
}

type systemSnapshotter interface {
	Snapshot() models.SystemMetrics
}

// AnalyticsHandler exposes dashboard-ready aggregates.
type AnalyticsHandler struct {
	claims  claimAnalytics
	metrics systemSnapshotter
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(claims claimAnalytics, metrics systemSnapshotter) *AnalyticsHandler {
	return &AnalyticsHandler{claims: claims, metrics: metrics}
}

// Claims godoc
// @Summary Claim counts by status and umbrella
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/claims [get]
func (h *AnalyticsHandler) Claims(c *gin.Context) {
	if h.claims == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "analytics disabled"))
		return
	}
	analytics, err := h.claims.Analytics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil, middleware.ResponseMeta(c))
}

// System godoc
// @Summary Process instrumentation snapshot
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil, middleware.ResponseMeta(c))
}
