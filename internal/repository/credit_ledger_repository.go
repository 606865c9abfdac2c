package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/database"
)

// ErrCapacityExceeded is returned when a reservation would push a slice past its total.
var ErrCapacityExceeded = errors.New("credit slice capacity exceeded")

const sliceColumns = `course_id, student_id, umbrella_key, completion_date, total_credits, credits_consumed, updated_at`

const reservationColumns = `id, course_id, claim_id, student_id, amount, status, created_at, released_at, committed_at`

// CreditLedgerRepository stores credit slices and the reservations held against them.
type CreditLedgerRepository struct {
	db *sqlx.DB
}

// NewCreditLedgerRepository constructs the repository.
func NewCreditLedgerRepository(db *sqlx.DB) *CreditLedgerRepository {
	return &CreditLedgerRepository{db: db}
}

// Slice returns the credit slice of a course.
func (r *CreditLedgerRepository) Slice(ctx context.Context, courseID string) (*models.CreditSlice, error) {
	query := `SELECT ` + sliceColumns + ` FROM course_credit_slices WHERE course_id = $1`
	var slice models.CreditSlice
	if err := r.db.GetContext(ctx, &slice, query, courseID); err != nil {
		return nil, err
	}
	return &slice, nil
}

// ListSlices returns a student's slices for one umbrella (all umbrellas when empty),
// ordered oldest completion first with course id as tie-break.
func (r *CreditLedgerRepository) ListSlices(ctx context.Context, studentID, umbrellaKey string) ([]models.CreditSlice, error) {
	query := `SELECT ` + sliceColumns + ` FROM course_credit_slices WHERE student_id = $1`
	args := []interface{}{studentID}
	if umbrellaKey != "" {
		query += ` AND umbrella_key = $2`
		args = append(args, umbrellaKey)
	}
	query += ` ORDER BY completion_date ASC, course_id ASC`
	var slices []models.CreditSlice
	if err := r.db.SelectContext(ctx, &slices, query, args...); err != nil {
		return nil, fmt.Errorf("list credit slices: %w", err)
	}
	return slices, nil
}

// Reserve records an ACTIVE reservation and adds its amount to the slice's consumed
// credits. The guarded update refuses to overdraw the slice.
func (r *CreditLedgerRepository) Reserve(ctx context.Context, res *models.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	res.Status = models.ReservationActive
	return database.WithTx(ctx, r.db, "reserve credits", func(tx *sqlx.Tx) error {
		const consume = `UPDATE course_credit_slices
	SET credits_consumed = credits_consumed + $1, updated_at = $2
	WHERE course_id = $3 AND total_credits - credits_consumed >= $1`
		result, err := tx.ExecContext(ctx, consume, res.Amount, res.CreatedAt, res.CourseID)
		if err != nil {
			return fmt.Errorf("consume credit slice: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check credit slice rows: %w", err)
		}
		if rows == 0 {
			return ErrCapacityExceeded
		}
		const insert = `INSERT INTO credit_reservations
	(id, course_id, claim_id, student_id, amount, status, created_at)
	VALUES (:id, :course_id, :claim_id, :student_id, :amount, :status, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insert, res); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
}

// Release returns an ACTIVE reservation's amount to its slice. It reports false,
// without error, when the reservation was already released or committed.
func (r *CreditLedgerRepository) Release(ctx context.Context, reservationID string, at time.Time) (bool, error) {
	released := false
	err := database.WithTx(ctx, r.db, "release credits", func(tx *sqlx.Tx) error {
		const mark = `UPDATE credit_reservations SET status = $1, released_at = $2
	WHERE id = $3 AND status = $4
	RETURNING course_id, amount`
		var row struct {
			CourseID string          `db:"course_id"`
			Amount   decimal.Decimal `db:"amount"`
		}
		if err := tx.GetContext(ctx, &row, mark, models.ReservationReleased, at, reservationID, models.ReservationActive); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("mark reservation released: %w", err)
		}
		const restore = `UPDATE course_credit_slices
	SET credits_consumed = credits_consumed - $1, updated_at = $2
	WHERE course_id = $3 AND credits_consumed >= $1`
		result, err := tx.ExecContext(ctx, restore, row.Amount, at, row.CourseID)
		if err != nil {
			return fmt.Errorf("restore credit slice: %w", err)
		}
		if rows, err := result.RowsAffected(); err != nil || rows == 0 {
			return fmt.Errorf("restore credit slice %s: consumed credits below reservation", row.CourseID)
		}
		released = true
		return nil
	})
	return released, err
}

// GetReservation fetches a reservation by id.
func (r *CreditLedgerRepository) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM credit_reservations WHERE id = $1`
	var res models.Reservation
	if err := r.db.GetContext(ctx, &res, query, id); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListByClaim returns the reservations made on behalf of a claim.
func (r *CreditLedgerRepository) ListByClaim(ctx context.Context, claimID string) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM credit_reservations WHERE claim_id = $1 ORDER BY created_at ASC, id ASC`
	var list []models.Reservation
	if err := r.db.SelectContext(ctx, &list, query, claimID); err != nil {
		return nil, fmt.Errorf("list claim reservations: %w", err)
	}
	return list, nil
}

// ListOrphaned returns ACTIVE reservations older than before whose claim was never persisted.
func (r *CreditLedgerRepository) ListOrphaned(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT r.id, r.course_id, r.claim_id, r.student_id, r.amount, r.status, r.created_at, r.released_at, r.committed_at
	FROM credit_reservations r
	LEFT JOIN certification_claims c ON c.id = r.claim_id
	WHERE r.status = $1 AND r.created_at < $2 AND c.id IS NULL
	ORDER BY r.created_at ASC
	LIMIT $3`
	var list []models.Reservation
	if err := r.db.SelectContext(ctx, &list, query, models.ReservationActive, before, limit); err != nil {
		return nil, fmt.Errorf("list orphaned reservations: %w", err)
	}
	return list, nil
}
