package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/database"
)

// ErrReservationsNotActive is returned when a claim's reservations can no longer be committed.
var ErrReservationsNotActive = errors.New("claim reservations are not all active")

const mappingColumns = `id, claim_id, student_id, umbrella_key, qualification, total_credits_required, created_by, created_at`

// CertificateRepository persists immutable certificate mappings.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// FinalizeParams bundles everything that must become durable together.
type FinalizeParams struct {
	// Steps are applied in order, e.g. poc_approved->admin_approved->approved.
	Steps   []ClaimTransitionParams
	Mapping *models.CertificateMapping
}

// Finalize applies the claim transitions, converts the claim's reservations into
// permanent consumption and writes the mapping, all in one transaction. A lost
// status race surfaces as sql.ErrNoRows.
func (r *CertificateRepository) Finalize(ctx context.Context, params FinalizeParams) error {
	mapping := params.Mapping
	if mapping == nil || len(params.Steps) == 0 {
		return fmt.Errorf("finalize: mapping and steps are required")
	}
	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	return database.WithTx(ctx, r.db, "finalize claim", func(tx *sqlx.Tx) error {
		for _, step := range params.Steps {
			if err := transitionTx(ctx, tx, step); err != nil {
				return err
			}
		}

		const commit = `UPDATE credit_reservations SET status = $1, committed_at = $2
	WHERE claim_id = $3 AND status = $4`
		result, err := tx.ExecContext(ctx, commit, models.ReservationCommitted, mapping.CreatedAt, mapping.ClaimID, models.ReservationActive)
		if err != nil {
			return fmt.Errorf("commit reservations: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check committed reservations: %w", err)
		}
		if int(rows) != len(mapping.Entries) {
			return fmt.Errorf("%w: committed %d of %d", ErrReservationsNotActive, rows, len(mapping.Entries))
		}

		const insertMapping = `INSERT INTO certificate_mappings
	(id, claim_id, student_id, umbrella_key, qualification, total_credits_required, created_by, created_at)
	VALUES (:id, :claim_id, :student_id, :umbrella_key, :qualification, :total_credits_required, :created_by, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insertMapping, mapping); err != nil {
			return fmt.Errorf("insert certificate mapping: %w", err)
		}
		const insertEntry = `INSERT INTO certificate_mapping_entries (mapping_id, position, course_id, reservation_id, credits)
	VALUES (:mapping_id, :position, :course_id, :reservation_id, :credits)`
		for i := range mapping.Entries {
			mapping.Entries[i].MappingID = mapping.ID
			mapping.Entries[i].Position = i
			if _, err := tx.NamedExecContext(ctx, insertEntry, mapping.Entries[i]); err != nil {
				return fmt.Errorf("insert certificate mapping entry: %w", err)
			}
		}
		return nil
	})
}

// GetByID loads a mapping with its entries.
func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*models.CertificateMapping, error) {
	return r.get(ctx, "id", id)
}

// GetByClaimID loads the mapping produced by a claim.
func (r *CertificateRepository) GetByClaimID(ctx context.Context, claimID string) (*models.CertificateMapping, error) {
	return r.get(ctx, "claim_id", claimID)
}

// ListByStudent returns a student's mappings without entries, newest first.
func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CertificateMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM certificate_mappings WHERE student_id = $1 ORDER BY created_at DESC`
	var list []models.CertificateMapping
	if err := r.db.SelectContext(ctx, &list, query, studentID); err != nil {
		return nil, fmt.Errorf("list certificate mappings: %w", err)
	}
	return list, nil
}

func (r *CertificateRepository) get(ctx context.Context, column, value string) (*models.CertificateMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificate_mappings WHERE %s = $1`, mappingColumns, column)
	var mapping models.CertificateMapping
	if err := r.db.GetContext(ctx, &mapping, query, value); err != nil {
		return nil, err
	}
	const entries = `SELECT mapping_id, position, course_id, reservation_id, credits
	FROM certificate_mapping_entries WHERE mapping_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &mapping.Entries, entries, mapping.ID); err != nil {
		return nil, fmt.Errorf("load certificate mapping entries: %w", err)
	}
	return &mapping, nil
}
