package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
)

// ImportBatchRepository tracks course ingestion batches.
type ImportBatchRepository struct {
	db *sqlx.DB
}

// NewImportBatchRepository constructs the repository.
func NewImportBatchRepository(db *sqlx.DB) *ImportBatchRepository {
	return &ImportBatchRepository{db: db}
}

// Create inserts a queued batch.
func (r *ImportBatchRepository) Create(ctx context.Context, batch *models.CourseImportBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	if batch.Status == "" {
		batch.Status = models.ImportQueued
	}
	if len(batch.Failures) == 0 {
		batch.Failures = json.RawMessage("[]")
	}
	const query = `INSERT INTO course_import_batches (id, status, total, succeeded, failed, failures, records, submitted_by, created_at)
	VALUES (:id, :status, :total, :succeeded, :failed, :failures, :records, :submitted_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create import batch: %w", err)
	}
	return nil
}

// GetByID fetches a batch.
func (r *ImportBatchRepository) GetByID(ctx context.Context, id string) (*models.CourseImportBatch, error) {
	const query = `SELECT id, status, total, succeeded, failed, failures, records, error, submitted_by, created_at, completed_at
	FROM course_import_batches WHERE id = $1`
	var batch models.CourseImportBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// MarkProcessing flags a queued or retried batch as being worked on.
func (r *ImportBatchRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE course_import_batches SET status = $1 WHERE id = $2 AND status IN ($3, $1)`
	result, err := r.db.ExecContext(ctx, query, models.ImportProcessing, id, models.ImportQueued)
	if err != nil {
		return fmt.Errorf("mark import batch processing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check import batch rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Complete stores the outcome of a batch.
func (r *ImportBatchRepository) Complete(ctx context.Context, batch *models.CourseImportBatch) error {
	now := time.Now().UTC()
	batch.CompletedAt = &now
	if len(batch.Failures) == 0 {
		batch.Failures = json.RawMessage("[]")
	}
	const query = `UPDATE course_import_batches
	SET status = :status, succeeded = :succeeded, failed = :failed, failures = :failures, error = :error, completed_at = :completed_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("complete import batch: %w", err)
	}
	return nil
}
