package dto

import "github.com/noah-isme/bprnd-credit-api/internal/models"

// SubmitClaimRequest asks for a qualification under an umbrella.
type SubmitClaimRequest struct {
	StudentID     string               `json:"student_id" validate:"required"`
	UmbrellaKey   string               `json:"umbrella_key" validate:"required"`
	Qualification models.Qualification `json:"qualification" validate:"required,oneof=certificate diploma pg_diploma"`
	DocumentRef   *string              `json:"document_ref,omitempty" validate:"omitempty,max=512"`
}

// DecisionRequest carries an optional reason for a POC or admin decision.
type DecisionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// ClaimQuery filters the claim listing endpoint.
type ClaimQuery struct {
	View       string // pending | declined | all
	Role       models.Role
	DeclinedBy string
	StudentID  string
	Umbrella   string
	Limit      int
	Offset     int
}

// ClaimView decorates a claim with the derived legacy flags.
type ClaimView struct {
	*models.CertificationClaim
	Legacy models.LegacyFlags `json:"legacy"`
}

// NewClaimView wraps claim.
func NewClaimView(claim *models.CertificationClaim) ClaimView {
	return ClaimView{CertificationClaim: claim, Legacy: claim.LegacyFlags()}
}

// UpsertRequirementRequest configures the credits a qualification needs.
type UpsertRequirementRequest struct {
	UmbrellaKey     string               `json:"umbrella_key" validate:"required"`
	Qualification   models.Qualification `json:"qualification" validate:"required,oneof=certificate diploma pg_diploma"`
	RequiredCredits string               `json:"required_credits" validate:"required,numeric"`
}
