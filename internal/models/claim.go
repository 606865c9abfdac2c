package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Qualification is the certificate tier a claim asks for.
type Qualification string

const (
	QualificationCertificate Qualification = "certificate"
	QualificationDiploma     Qualification = "diploma"
	QualificationPGDiploma   Qualification = "pg_diploma"
)

// Valid reports whether q is a known tier.
func (q Qualification) Valid() bool {
	switch q {
	case QualificationCertificate, QualificationDiploma, QualificationPGDiploma:
		return true
	}
	return false
}

// ClaimStatus is the single authoritative state of a certification claim.
type ClaimStatus string

const (
	ClaimPending       ClaimStatus = "pending"
	ClaimPOCApproved   ClaimStatus = "poc_approved"
	ClaimPOCDeclined   ClaimStatus = "poc_declined"
	ClaimAdminApproved ClaimStatus = "admin_approved"
	ClaimAdminDeclined ClaimStatus = "admin_declined"
	ClaimApproved      ClaimStatus = "approved"
)

// ClaimAction is an input to the claim state machine.
type ClaimAction string

const (
	ActionPOCApprove   ClaimAction = "poc_approve"
	ActionPOCDecline   ClaimAction = "poc_decline"
	ActionAdminApprove ClaimAction = "admin_approve"
	ActionAdminDecline ClaimAction = "admin_decline"
	ActionFinalize     ClaimAction = "finalize"
)

// claimTransitions is the complete transition table. Anything absent is illegal.
var claimTransitions = map[ClaimStatus]map[ClaimAction]ClaimStatus{
	ClaimPending: {
		ActionPOCApprove: ClaimPOCApproved,
		ActionPOCDecline: ClaimPOCDeclined,
	},
	ClaimPOCApproved: {
		ActionAdminApprove: ClaimAdminApproved,
		ActionAdminDecline: ClaimAdminDeclined,
	},
	ClaimAdminApproved: {
		ActionFinalize: ClaimApproved,
	},
	ClaimPOCDeclined:   {},
	ClaimAdminDeclined: {},
	ClaimApproved:      {},
}

// Next returns the state reached by applying action, and false when illegal.
func (s ClaimStatus) Next(action ClaimAction) (ClaimStatus, bool) {
	next, ok := claimTransitions[s][action]
	return next, ok
}

// Terminal reports whether no further transition is possible.
func (s ClaimStatus) Terminal() bool {
	transitions, known := claimTransitions[s]
	return known && len(transitions) == 0
}

// Declined reports whether s is one of the decline terminals.
func (s ClaimStatus) Declined() bool {
	return s == ClaimPOCDeclined || s == ClaimAdminDeclined
}

// Valid reports whether s is a known state.
func (s ClaimStatus) Valid() bool {
	_, ok := claimTransitions[s]
	return ok
}

// RequiredRole returns the role allowed to perform action.
func (a ClaimAction) RequiredRole() Role {
	switch a {
	case ActionPOCApprove, ActionPOCDecline:
		return RolePOC
	default:
		return RoleAdmin
	}
}

// CourseContribution reserves part of a course's credits for a claim.
type CourseContribution struct {
	ClaimID         string          `db:"claim_id" json:"claim_id"`
	Position        int             `db:"position" json:"position"`
	CourseID        string          `db:"course_id" json:"course_id"`
	ReservationID   string          `db:"reservation_id" json:"reservation_id"`
	CreditsReserved decimal.Decimal `db:"credits_reserved" json:"credits_reserved"`
}

// CertificationClaim is a student's request for a qualification under an umbrella.
type CertificationClaim struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	UmbrellaKey     string          `db:"umbrella_key" json:"umbrella_key"`
	Qualification   Qualification   `db:"qualification" json:"qualification"`
	RequiredCredits decimal.Decimal `db:"required_credits" json:"required_credits"`
	Status          ClaimStatus     `db:"status" json:"status"`
	DocumentRef     *string         `db:"document_ref" json:"document_ref,omitempty"`
	POCActedBy      *string         `db:"poc_acted_by" json:"poc_acted_by,omitempty"`
	POCActedAt      *time.Time      `db:"poc_acted_at" json:"poc_acted_at,omitempty"`
	POCReason       *string         `db:"poc_reason" json:"poc_reason,omitempty"`
	AdminActedBy    *string         `db:"admin_acted_by" json:"admin_acted_by,omitempty"`
	AdminActedAt    *time.Time      `db:"admin_acted_at" json:"admin_acted_at,omitempty"`
	AdminReason     *string         `db:"admin_reason" json:"admin_reason,omitempty"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	Contributions []CourseContribution `db:"-" json:"contributions"`
}

// ReservedCredits sums the contribution amounts.
func (c *CertificationClaim) ReservedCredits() decimal.Decimal {
	total := decimal.Zero
	for _, contribution := range c.Contributions {
		total = total.Add(contribution.CreditsReserved)
	}
	return total
}

// LegacyFlags is the boolean view older dashboard screens read. It is derived
// from Status and never written back.
type LegacyFlags struct {
	POCApproved      bool `json:"poc_approved"`
	BPRNDPOCApproved bool `json:"bprnd_poc_approved"`
	AdminApproved    bool `json:"admin_approved"`
	Declined         bool `json:"declined"`
}

// LegacyFlags derives the boolean approval view from Status.
func (c *CertificationClaim) LegacyFlags() LegacyFlags {
	var flags LegacyFlags
	switch c.Status {
	case ClaimPOCApproved:
		flags.POCApproved = true
	case ClaimAdminApproved, ClaimApproved:
		flags.POCApproved = true
		flags.AdminApproved = true
	case ClaimAdminDeclined:
		flags.POCApproved = true
		flags.Declined = true
	case ClaimPOCDeclined:
		flags.Declined = true
	}
	flags.BPRNDPOCApproved = flags.POCApproved
	return flags
}

// ClaimEvent is one persisted transition, including the transient admin_approved step.
type ClaimEvent struct {
	ID         string      `db:"id" json:"id"`
	ClaimID    string      `db:"claim_id" json:"claim_id"`
	FromStatus ClaimStatus `db:"from_status" json:"from_status"`
	ToStatus   ClaimStatus `db:"to_status" json:"to_status"`
	ActorID    string      `db:"actor_id" json:"actor_id"`
	ActorRole  Role        `db:"actor_role" json:"actor_role"`
	Reason     *string     `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// ClaimFilter constrains claim listings.
type ClaimFilter struct {
	StudentID    string
	UmbrellaKey  string
	Status       []ClaimStatus
	POCActedBy   string
	AdminActedBy string
	Limit        int
	Offset       int
}
