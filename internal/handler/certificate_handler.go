package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/response"
)

type certificateReader interface {
	ByID(ctx context.Context, session models.Session, id string) (*models.CertificateMapping, error)
	ByClaim(ctx context.Context, session models.Session, claimID string) (*models.CertificateMapping, error)
	ForStudent(ctx context.Context, session models.Session, studentID string) ([]models.CertificateMapping, error)
}

// CertificateHandler exposes issued certificate mappings.
type CertificateHandler struct {
	certificates certificateReader
}

// NewCertificateHandler constructs a certificate handler.
func NewCertificateHandler(certificates certificateReader) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Get godoc
// @Summary Get a certificate mapping
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate mapping ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	h.respond(c, h.certificates.ByID, c.Param("id"))
}

// ByClaim godoc
// @Summary Certificate mapping issued for a claim
// @Tags Certificates
// @Produce json
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope
// @Router /claims/{id}/certificate [get]
func (h *CertificateHandler) ByClaim(c *gin.Context) {
	h.respond(c, h.certificates.ByClaim, c.Param("id"))
}

// ForStudent godoc
// @Summary Certificates issued to a student
// @Tags Certificates
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/certificates [get]
func (h *CertificateHandler) ForStudent(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	mappings, err := h.certificates.ForStudent(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mappings, nil)
}

func (h *CertificateHandler) respond(c *gin.Context, load func(context.Context, models.Session, string) (*models.CertificateMapping, error), id string) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	mapping, err := load(c.Request.Context(), session, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mapping, nil)
}
