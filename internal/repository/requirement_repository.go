package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
)

// RequirementRepository stores qualification credit thresholds per umbrella.
type RequirementRepository struct {
	db *sqlx.DB
}

// NewRequirementRepository constructs the repository.
func NewRequirementRepository(db *sqlx.DB) *RequirementRepository {
	return &RequirementRepository{db: db}
}

// Get fetches the requirement for an umbrella and qualification.
func (r *RequirementRepository) Get(ctx context.Context, umbrellaKey string, qualification models.Qualification) (*models.QualificationRequirement, error) {
	const query = `SELECT umbrella_key, qualification, required_credits, updated_by, updated_at
	FROM qualification_requirements WHERE umbrella_key = $1 AND qualification = $2`
	var req models.QualificationRequirement
	if err := r.db.GetContext(ctx, &req, query, umbrellaKey, qualification); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns every configured requirement.
func (r *RequirementRepository) List(ctx context.Context) ([]models.QualificationRequirement, error) {
	const query = `SELECT umbrella_key, qualification, required_credits, updated_by, updated_at
	FROM qualification_requirements ORDER BY umbrella_key, qualification`
	var list []models.QualificationRequirement
	if err := r.db.SelectContext(ctx, &list, query); err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	return list, nil
}

// Upsert inserts or updates a requirement.
func (r *RequirementRepository) Upsert(ctx context.Context, req *models.QualificationRequirement) error {
	const query = `INSERT INTO qualification_requirements (umbrella_key, qualification, required_credits, updated_by, updated_at)
VALUES (:umbrella_key, :qualification, :required_credits, :updated_by, :updated_at)
ON CONFLICT (umbrella_key, qualification)
DO UPDATE SET required_credits = EXCLUDED.required_credits, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	req.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("upsert requirement: %w", err)
	}
	return nil
}
