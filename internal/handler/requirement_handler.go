package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/response"
)

type requirementRegistry interface {
	List(ctx context.Context) ([]models.QualificationRequirement, error)
	Upsert(ctx context.Context, session models.Session, req dto.UpsertRequirementRequest) (*models.QualificationRequirement, error)
}

// RequirementHandler manages qualification credit thresholds.
type RequirementHandler struct {
	registry requirementRegistry
}

// NewRequirementHandler constructs a requirement handler.
func NewRequirementHandler(registry requirementRegistry) *RequirementHandler {
	return &RequirementHandler{registry: registry}
}

// List godoc
// @Summary List qualification requirements
// @Tags Requirements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requirements [get]
func (h *RequirementHandler) List(c *gin.Context) {
	list, err := h.registry.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Upsert godoc
// @Summary Set the credits a qualification requires under an umbrella
// @Tags Requirements
// @Accept json
// @Produce json
// @Param payload body dto.UpsertRequirementRequest true "Requirement"
// @Success 200 {object} response.Envelope
// @Router /requirements [put]
func (h *RequirementHandler) Upsert(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpsertRequirementRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.registry.Upsert(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
