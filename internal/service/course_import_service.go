package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
	"github.com/noah-isme/bprnd-credit-api/pkg/jobs"
)

// CourseImportJobType tags course ingestion jobs on the queue.
const CourseImportJobType = "course_import"

type importBatchStore interface {
	Create(ctx context.Context, batch *models.CourseImportBatch) error
	GetByID(ctx context.Context, id string) (*models.CourseImportBatch, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, batch *models.CourseImportBatch) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type courseRecorder interface {
	recordCourse(ctx context.Context, session models.Session, id string, req dto.RecordCourseRequest) (*models.CreditSlice, error)
}

// CourseImportService accepts bulk course uploads and hands them to the worker queue.
type CourseImportService struct {
	batches   importBatchStore
	queue     jobDispatcher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseImportService constructs the service.
func NewCourseImportService(batches importBatchStore, queue jobDispatcher, validate *validator.Validate, logger *zap.Logger) *CourseImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseImportService{batches: batches, queue: queue, validator: validate, logger: logger}
}

// Submit stores the batch and queues it for processing.
func (s *CourseImportService) Submit(ctx context.Context, session models.Session, req dto.ImportCoursesRequest) (*models.CourseImportBatch, error) {
	if err := requireRole(session, models.RoleAdmin, models.RoleSystem); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import batch")
	}
	records, err := json.Marshal(req.Records)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to encode import batch")
	}
	batch := &models.CourseImportBatch{
		Status:      models.ImportQueued,
		Total:       len(req.Records),
		Records:     records,
		SubmittedBy: session.Actor.ID,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create import batch")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: batch.ID, Type: CourseImportJobType}); err != nil {
		msg := "failed to enqueue batch: " + err.Error()
		batch.Status = models.ImportFailed
		batch.Error = &msg
		if completeErr := s.batches.Complete(ctx, batch); completeErr != nil {
			s.logger.Warn("failed to mark import batch failed", zap.String("batch_id", batch.ID), zap.Error(completeErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrContention.Code, appErrors.ErrContention.Status, "import queue is busy, retry later")
	}
	s.logger.Info("course import queued", append(sessionFields(session),
		zap.String("batch_id", batch.ID),
		zap.Int("records", batch.Total))...)
	return batch, nil
}

// Get returns a batch and its outcome.
func (s *CourseImportService) Get(ctx context.Context, id string) (*models.CourseImportBatch, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "import batch")
	}
	return batch, nil
}

// CourseImportWorker records each course of a batch through the credit ledger.
type CourseImportWorker struct {
	batches importBatchStore
	ledger  courseRecorder
	logger  *zap.Logger
}

// NewCourseImportWorker constructs the worker.
func NewCourseImportWorker(batches importBatchStore, ledger courseRecorder, logger *zap.Logger) *CourseImportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseImportWorker{batches: batches, ledger: ledger, logger: logger}
}

// Handle processes one batch. Rejected records are reported in the batch and
// never stored. Infrastructure errors are returned so the queue retries; course
// ids are derived from the batch id and record index, so a retry does not
// duplicate courses recorded by the previous attempt.
func (w *CourseImportWorker) Handle(ctx context.Context, job jobs.Job) error {
	batch, err := w.batches.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := w.batches.MarkProcessing(ctx, batch.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Info("import batch already finished", zap.String("batch_id", batch.ID))
			return nil
		}
		return err
	}
	batchID, err := uuid.Parse(batch.ID)
	if err != nil {
		return w.fail(ctx, batch, "batch id is not a uuid")
	}
	var records []dto.RecordCourseRequest
	if err := json.Unmarshal(batch.Records, &records); err != nil {
		return w.fail(ctx, batch, "stored records are unreadable")
	}

	session := models.SystemSession("course-import")
	session.Actor.ID = batch.SubmittedBy
	failures := make([]models.ImportFailure, 0)
	succeeded := 0
	for i, record := range records {
		courseID := uuid.NewSHA1(batchID, []byte(strconv.Itoa(i))).String()
		if _, err := w.ledger.recordCourse(ctx, session, courseID, record); err != nil {
			appErr := appErrors.FromError(err)
			if errors.Is(err, appErrors.ErrInvalidHours) || errors.Is(err, appErrors.ErrValidation) {
				failures = append(failures, models.ImportFailure{Index: i, Code: appErr.Code, Reason: appErr.Message})
				continue
			}
			return err
		}
		succeeded++
	}

	encoded, err := json.Marshal(failures)
	if err != nil {
		return err
	}
	batch.Status = models.ImportCompleted
	batch.Succeeded = succeeded
	batch.Failed = len(failures)
	batch.Failures = encoded
	if err := w.batches.Complete(ctx, batch); err != nil {
		return err
	}
	w.logger.Info("course import completed",
		zap.String("batch_id", batch.ID),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(failures)))
	return nil
}

// OnExhausted marks a batch failed once the queue gives up on it.
func (w *CourseImportWorker) OnExhausted(ctx context.Context, job jobs.Job, err error) {
	batch, getErr := w.batches.GetByID(context.WithoutCancel(ctx), job.ID)
	if getErr != nil {
		w.logger.Error("failed to load exhausted import batch", zap.String("batch_id", job.ID), zap.Error(getErr))
		return
	}
	_ = w.fail(context.WithoutCancel(ctx), batch, err.Error())
}

func (w *CourseImportWorker) fail(ctx context.Context, batch *models.CourseImportBatch, reason string) error {
	batch.Status = models.ImportFailed
	batch.Error = &reason
	if err := w.batches.Complete(ctx, batch); err != nil {
		w.logger.Error("failed to mark import batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
		return err
	}
	w.logger.Warn("course import failed", zap.String("batch_id", batch.ID), zap.String("reason", reason))
	return nil
}
