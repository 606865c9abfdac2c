package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/database"
)

const claimColumns = `id, student_id, umbrella_key, qualification, required_credits, status, document_ref,
       poc_acted_by, poc_acted_at, poc_reason, admin_acted_by, admin_acted_at, admin_reason,
       created_by, created_at, updated_at`

// ClaimRepository persists certification claims, their contributions and transition events.
type ClaimRepository struct {
	db *sqlx.DB
}

// NewClaimRepository constructs the repository.
func NewClaimRepository(db *sqlx.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Create inserts a pending claim with its contribution list.
func (r *ClaimRepository) Create(ctx context.Context, claim *models.CertificationClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	claim.UpdatedAt = claim.CreatedAt
	if claim.Status == "" {
		claim.Status = models.ClaimPending
	}
	return database.WithTx(ctx, r.db, "create claim", func(tx *sqlx.Tx) error {
		const insertClaim = `INSERT INTO certification_claims
	(id, student_id, umbrella_key, qualification, required_credits, status, document_ref, created_by, created_at, updated_at)
	VALUES (:id, :student_id, :umbrella_key, :qualification, :required_credits, :status, :document_ref, :created_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertClaim, claim); err != nil {
			return fmt.Errorf("create claim: %w", err)
		}
		const insertContribution = `INSERT INTO claim_contributions
	(claim_id, position, course_id, reservation_id, credits_reserved)
	VALUES (:claim_id, :position, :course_id, :reservation_id, :credits_reserved)`
		for i := range claim.Contributions {
			claim.Contributions[i].ClaimID = claim.ID
			claim.Contributions[i].Position = i
			if _, err := tx.NamedExecContext(ctx, insertContribution, claim.Contributions[i]); err != nil {
				return fmt.Errorf("create claim contribution: %w", err)
			}
		}
		return nil
	})
}

// GetByID loads a claim and its contributions.
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*models.CertificationClaim, error) {
	query := `SELECT ` + claimColumns + ` FROM certification_claims WHERE id = $1`
	var claim models.CertificationClaim
	if err := r.db.GetContext(ctx, &claim, query, id); err != nil {
		return nil, err
	}
	const contributions = `SELECT claim_id, position, course_id, reservation_id, credits_reserved
	FROM claim_contributions WHERE claim_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &claim.Contributions, contributions, id); err != nil {
		return nil, fmt.Errorf("load claim contributions: %w", err)
	}
	return &claim, nil
}

// List returns claims matching the filter, newest first. Contributions are not loaded.
func (r *ClaimRepository) List(ctx context.Context, filter models.ClaimFilter) ([]models.CertificationClaim, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + claimColumns + ` FROM certification_claims`)

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.UmbrellaKey != "" {
		args = append(args, filter.UmbrellaKey)
		conditions = append(conditions, fmt.Sprintf("umbrella_key = $%d", len(args)))
	}
	if filter.POCActedBy != "" {
		args = append(args, filter.POCActedBy)
		conditions = append(conditions, fmt.Sprintf("poc_acted_by = $%d", len(args)))
	}
	if filter.AdminActedBy != "" {
		args = append(args, filter.AdminActedBy)
		conditions = append(conditions, fmt.Sprintf("admin_acted_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var claims []models.CertificationClaim
	if err := r.db.SelectContext(ctx, &claims, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

// ClaimTransitionParams describes a guarded status change.
type ClaimTransitionParams struct {
	ClaimID string
	From    models.ClaimStatus
	To      models.ClaimStatus
	Actor   models.Actor
	Reason  *string
	At      time.Time
}

// Transition moves a claim from params.From to params.To and records the event.
// It returns sql.ErrNoRows when the claim is no longer in params.From.
func (r *ClaimRepository) Transition(ctx context.Context, params ClaimTransitionParams) error {
	return database.WithTx(ctx, r.db, "transition claim", func(tx *sqlx.Tx) error {
		return transitionTx(ctx, tx, params)
	})
}

// Events returns the transition history of a claim.
func (r *ClaimRepository) Events(ctx context.Context, claimID string) ([]models.ClaimEvent, error) {
	const query = `SELECT id, claim_id, from_status, to_status, actor_id, actor_role, reason, created_at
	FROM claim_events WHERE claim_id = $1 ORDER BY created_at ASC, id ASC`
	var events []models.ClaimEvent
	if err := r.db.SelectContext(ctx, &events, query, claimID); err != nil {
		return nil, fmt.Errorf("list claim events: %w", err)
	}
	return events, nil
}

// CountByStatus groups claims by status.
func (r *ClaimRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS total FROM certification_claims GROUP BY status ORDER BY status`
	var rows []models.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count claims by status: %w", err)
	}
	return rows, nil
}

// CountByUmbrella groups claims by umbrella key.
func (r *ClaimRepository) CountByUmbrella(ctx context.Context) ([]models.UmbrellaCount, error) {
	const query = `SELECT umbrella_key, COUNT(*) AS total FROM certification_claims GROUP BY umbrella_key ORDER BY umbrella_key`
	var rows []models.UmbrellaCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count claims by umbrella: %w", err)
	}
	return rows, nil
}

// transitionTx performs the guarded update inside an existing transaction.
func transitionTx(ctx context.Context, tx *sqlx.Tx, params ClaimTransitionParams) error {
	setParts := []string{"status = :to", "updated_at = :at"}
	switch params.To {
	case models.ClaimPOCApproved, models.ClaimPOCDeclined:
		setParts = append(setParts, "poc_acted_by = :actor_id", "poc_acted_at = :at", "poc_reason = :reason")
	case models.ClaimAdminApproved, models.ClaimAdminDeclined:
		setParts = append(setParts, "admin_acted_by = :actor_id", "admin_acted_at = :at", "admin_reason = :reason")
	}
	query := fmt.Sprintf("UPDATE certification_claims SET %s WHERE id = :id AND status = :from", strings.Join(setParts, ", "))
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":       params.ClaimID,
		"from":     params.From,
		"to":       params.To,
		"at":       params.At,
		"actor_id": params.Actor.ID,
		"reason":   params.Reason,
	})
	if err != nil {
		return fmt.Errorf("update claim status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check claim update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return insertEventTx(ctx, tx, params)
}

func insertEventTx(ctx context.Context, tx *sqlx.Tx, params ClaimTransitionParams) error {
	event := models.ClaimEvent{
		ID:         uuid.NewString(),
		ClaimID:    params.ClaimID,
		FromStatus: params.From,
		ToStatus:   params.To,
		ActorID:    params.Actor.ID,
		ActorRole:  params.Actor.Role,
		Reason:     params.Reason,
		CreatedAt:  params.At,
	}
	const query = `INSERT INTO claim_events (id, claim_id, from_status, to_status, actor_id, actor_role, reason, created_at)
	VALUES (:id, :claim_id, :from_status, :to_status, :actor_id, :actor_role, :reason, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert claim event: %w", err)
	}
	return nil
}
