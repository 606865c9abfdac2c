package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/database"
)

const courseColumns = `id, student_id, organization, umbrella_key, theory_hours, practical_hours, total_hours,
       no_of_days, completion_date, theory_credits, practical_credits, total_credits, document_ref, created_by, created_at`

// CourseRepository persists completed courses together with their credit slices.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts the course and opens its credit slice in one transaction.
// Re-inserting an existing id is a no-op so import retries stay safe.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	return database.WithTx(ctx, r.db, "create course", func(tx *sqlx.Tx) error {
		const insertCourse = `INSERT INTO courses
	(id, student_id, organization, umbrella_key, theory_hours, practical_hours, total_hours, no_of_days,
	 completion_date, theory_credits, practical_credits, total_credits, document_ref, created_by, created_at)
	VALUES (:id, :student_id, :organization, :umbrella_key, :theory_hours, :practical_hours, :total_hours, :no_of_days,
	 :completion_date, :theory_credits, :practical_credits, :total_credits, :document_ref, :created_by, :created_at)
	ON CONFLICT (id) DO NOTHING`
		if _, err := tx.NamedExecContext(ctx, insertCourse, course); err != nil {
			return fmt.Errorf("create course: %w", err)
		}
		const insertSlice = `INSERT INTO course_credit_slices
	(course_id, student_id, umbrella_key, completion_date, total_credits, credits_consumed, updated_at)
	VALUES ($1, $2, $3, $4, $5, 0, $6)
	ON CONFLICT (course_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, insertSlice, course.ID, course.StudentID, course.UmbrellaKey,
			course.CompletionDate, course.TotalCredits, course.CreatedAt); err != nil {
			return fmt.Errorf("create credit slice: %w", err)
		}
		return nil
	})
}

// FindByID fetches a course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListByStudent returns every course of a student, oldest completion first.
func (r *CourseRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE student_id = $1 ORDER BY completion_date ASC, id ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	return courses, nil
}
