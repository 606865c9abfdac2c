package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/response"
)

type claimSubmitter interface {
	Submit(ctx context.Context, session models.Session, req dto.SubmitClaimRequest) (*models.CertificationClaim, error)
}

type claimReviewer interface {
	PocApprove(ctx context.Context, session models.Session, claimID string) (*models.CertificationClaim, error)
	PocDecline(ctx context.Context, session models.Session, claimID, reason string) (*models.CertificationClaim, error)
	AdminApprove(ctx context.Context, session models.Session, claimID string) (*models.CertificationClaim, *models.CertificateMapping, error)
	AdminDecline(ctx context.Context, session models.Session, claimID, reason string) (*models.CertificationClaim, error)
}

type claimReader interface {
	List(ctx context.Context, session models.Session, query dto.ClaimQuery) ([]dto.ClaimView, *models.Pagination, error)
	Get(ctx context.Context, session models.Session, id string) (*models.CertificationClaim, error)
	Contributions(ctx context.Context, session models.Session, id string) ([]models.CourseContribution, error)
	Events(ctx context.Context, session models.Session, id string) ([]models.ClaimEvent, error)
}

type claimFinalizer interface {
	Finalize(ctx context.Context, session models.Session, claimID string) (*models.CertificateMapping, error)
}

// ClaimHandler exposes claim submission, review and lookup endpoints.
type ClaimHandler struct {
	allocator claimSubmitter
	reviews   claimReviewer
	queries   claimReader
	finalizer claimFinalizer
}

// NewClaimHandler constructs a claim handler.
func NewClaimHandler(allocator claimSubmitter, reviews claimReviewer, queries claimReader, finalizer claimFinalizer) *ClaimHandler {
	return &ClaimHandler{allocator: allocator, reviews: reviews, queries: queries, finalizer: finalizer}
}

type approvalResult struct {
	Claim       dto.ClaimView              `json:"claim"`
	Certificate *models.CertificateMapping `json:"certificate,omitempty"`
}

// Submit godoc
// @Summary Submit a certification claim
// @Tags Claims
// @Accept json
// @Produce json
// @Param payload body dto.SubmitClaimRequest true "Claim"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /claims [post]
func (h *ClaimHandler) Submit(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SubmitClaimRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	claim, err := h.allocator.Submit(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewClaimView(claim))
}

// List godoc
// @Summary List claims
// @Description view=pending lists claims awaiting the caller's decision, view=declined those declined at the caller's stage.
// @Tags Claims
// @Produce json
// @Param view query string false "pending | declined | approved | all"
// @Param role query string false "Admin only: list as another role"
// @Param declined_by query string false "Decliner id (declined view)"
// @Param student_id query string false "Student filter"
// @Param umbrella query string false "Umbrella filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /claims [get]
func (h *ClaimHandler) List(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.ClaimQuery{
		View:       c.Query("view"),
		Role:       models.Role(c.Query("role")),
		DeclinedBy: c.Query("declined_by"),
		StudentID:  c.Query("student_id"),
		Umbrella:   c.Query("umbrella"),
		Limit:      queryInt(c, "limit", 50),
		Offset:     queryInt(c, "offset", 0),
	}
	claims, pagination, err := h.queries.List(c.Request.Context(), session, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claims, pagination)
}

// Get godoc
// @Summary Get a claim
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Router /claims/{id} [get]
func (h *ClaimHandler) Get(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	claim, err := h.queries.Get(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewClaimView(claim), nil)
}

// Contributions godoc
// @Summary Courses consumed by a claim
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Router /claims/{id}/contributions [get]
func (h *ClaimHandler) Contributions(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	contributions, err := h.queries.Contributions(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contributions, nil)
}

// Events godoc
// @Summary Transition history of a claim
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Router /claims/{id}/events [get]
func (h *ClaimHandler) Events(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	events, err := h.queries.Events(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// PocApprove godoc
// @Summary POC approves a pending claim
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /claims/{id}/poc-approve [post]
func (h *ClaimHandler) PocApprove(c *gin.Context) {
	h.decide(c, func(ctx context.Context, session models.Session, id, _ string) (*models.CertificationClaim, error) {
		return h.reviews.PocApprove(ctx, session, id)
	})
}

// PocDecline godoc
// @Summary POC declines a pending claim
// @Tags Claims
// @Accept json
// @Produce json
// @Param id path string true "Claim ID"
// @Param payload body dto.DecisionRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /claims/{id}/poc-decline [post]
func (h *ClaimHandler) PocDecline(c *gin.Context) {
	h.decide(c, h.reviews.PocDecline)
}

// AdminDecline godoc
// @Summary Admin declines a POC-approved claim
// @Tags Claims
// @Accept json
// @Produce json
// @Param id path string true "Claim ID"
// @Param payload body dto.DecisionRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /claims/{id}/admin-decline [post]
func (h *ClaimHandler) AdminDecline(c *gin.Context) {
	h.decide(c, h.reviews.AdminDecline)
}

// AdminApprove godoc
// @Summary Admin approves a claim and issues its certificate mapping
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /claims/{id}/admin-approve [post]
func (h *ClaimHandler) AdminApprove(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	claim, mapping, err := h.reviews.AdminApprove(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvalResult{Claim: dto.NewClaimView(claim), Certificate: mapping}, nil)
}

// Finalize godoc
// @Summary Finalize an admin-approved claim
// @Description Idempotent: an already approved claim returns its existing mapping.
// @Tags Claims
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /claims/{id}/finalize [post]
func (h *ClaimHandler) Finalize(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	mapping, err := h.finalizer.Finalize(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mapping, nil)
}

type decisionFunc func(ctx context.Context, session models.Session, claimID, reason string) (*models.CertificationClaim, error)

// decide runs a decision that returns only the updated claim. An empty body is
// a decision without reason.
func (h *ClaimHandler) decide(c *gin.Context, fn decisionFunc) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			response.Error(c, err)
			return
		}
	}
	claim, err := fn(c.Request.Context(), session, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewClaimView(claim), nil)
}
