package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/internal/repository"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

type courseStore interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Course, error)
}

type creditLedgerStore interface {
	Slice(ctx context.Context, courseID string) (*models.CreditSlice, error)
	ListSlices(ctx context.Context, studentID, umbrellaKey string) ([]models.CreditSlice, error)
	Reserve(ctx context.Context, res *models.Reservation) error
	Release(ctx context.Context, reservationID string, at time.Time) (bool, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	ListByClaim(ctx context.Context, claimID string) ([]models.Reservation, error)
}

// ReserveParams identifies what a reservation is for.
type ReserveParams struct {
	CourseID  string
	ClaimID   string
	StudentID string
	Amount    decimal.Decimal
}

// CreditLedgerService is the single source of truth for unconsumed course credits.
// Every mutation of a course's slice happens under that course's lock.
type CreditLedgerService struct {
	courses   courseStore
	ledger    creditLedgerStore
	locks     keyLocker
	rates     models.CreditRates
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// CreditLedgerOption configures the ledger.
type CreditLedgerOption func(*CreditLedgerService)

// WithLedgerMetrics attaches the metrics service.
func WithLedgerMetrics(metrics *MetricsService) CreditLedgerOption {
	return func(s *CreditLedgerService) {
		s.metrics = metrics
	}
}

// WithLedgerClock overrides the clock, mainly for tests.
func WithLedgerClock(now func() time.Time) CreditLedgerOption {
	return func(s *CreditLedgerService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCreditLedgerService constructs the ledger.
func NewCreditLedgerService(courses courseStore, ledger creditLedgerStore, locks keyLocker, rates models.CreditRates, validate *validator.Validate, logger *zap.Logger, opts ...CreditLedgerOption) *CreditLedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &CreditLedgerService{
		courses:   courses,
		ledger:    ledger,
		locks:     locks,
		rates:     rates,
		validator: validate,
		logger:    logger,
		now:       utcNow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RecordCourse validates a completed course, computes its credits and opens its slice.
func (s *CreditLedgerService) RecordCourse(ctx context.Context, session models.Session, req dto.RecordCourseRequest) (*models.CreditSlice, error) {
	if err := requireRole(session, models.RoleAdmin, models.RoleSystem); err != nil {
		return nil, err
	}
	return s.recordCourse(ctx, session, "", req)
}

// recordCourse stores the course under id, generating one when empty.
func (s *CreditLedgerService) recordCourse(ctx context.Context, session models.Session, id string, req dto.RecordCourseRequest) (*models.CreditSlice, error) {
	course, err := s.buildCourse(req)
	if err != nil {
		return nil, err
	}
	course.ID = id
	course.CreatedBy = session.Actor.ID
	course.CreatedAt = s.now()
	if err := s.courses.Create(ctx, course); err != nil {
		if isCanceled(err) {
			return nil, cancellation(err)
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to record course")
	}
	s.logger.Info("course recorded",
		append(sessionFields(session),
			zap.String("course_id", course.ID),
			zap.String("student_id", course.StudentID),
			zap.String("umbrella", course.UmbrellaKey),
			zap.String("total_credits", course.TotalCredits.String()))...)
	return &models.CreditSlice{
		CourseID:        course.ID,
		StudentID:       course.StudentID,
		UmbrellaKey:     course.UmbrellaKey,
		CompletionDate:  course.CompletionDate,
		TotalCredits:    course.TotalCredits,
		CreditsConsumed: decimal.Zero,
		UpdatedAt:       course.CreatedAt,
	}, nil
}

// buildCourse validates the record and derives credits. It never touches storage.
func (s *CreditLedgerService) buildCourse(req dto.RecordCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course record")
	}
	if req.TheoryHours.IsNegative() || req.PracticalHours.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrInvalidHours, "theory and practical hours must not be negative")
	}
	sum := req.TheoryHours.Add(req.PracticalHours)
	course := &models.Course{
		StudentID:      strings.TrimSpace(req.StudentID),
		Organization:   strings.TrimSpace(req.Organization),
		UmbrellaKey:    normalizeUmbrella(req.UmbrellaKey),
		TheoryHours:    req.TheoryHours,
		PracticalHours: req.PracticalHours,
		NoOfDays:       req.NoOfDays,
		CompletionDate: req.CompletionDate.UTC(),
		DocumentRef:    req.DocumentRef,
	}
	if req.TotalHours != nil {
		if !req.TotalHours.Equal(sum) {
			return nil, appErrors.Clonef(appErrors.ErrInvalidHours, "total hours %s do not equal theory plus practical hours %s", req.TotalHours.String(), sum.String())
		}
		course.TotalHours = decimal.NullDecimal{Decimal: *req.TotalHours, Valid: true}
	}
	s.rates.Apply(course)
	return course, nil
}

// Reserve holds amount credits of a course for a claim and returns the reservation id.
func (s *CreditLedgerService) Reserve(ctx context.Context, params ReserveParams) (string, error) {
	if !params.Amount.IsPositive() {
		return "", appErrors.Clone(appErrors.ErrValidation, "reservation amount must be positive")
	}
	release, err := acquire(ctx, s.locks, scopeCourse, params.CourseID)
	if err != nil {
		return "", err
	}
	defer release()

	slice, err := s.ledger.Slice(ctx, params.CourseID)
	if err != nil {
		return "", lookupError(err, "course")
	}
	if params.Amount.GreaterThan(slice.Available()) {
		return "", appErrors.Clonef(appErrors.ErrInsufficientCredits, "course %s has %s credits available, %s requested",
			params.CourseID, slice.Available().String(), params.Amount.String())
	}
	res := &models.Reservation{
		CourseID:  params.CourseID,
		ClaimID:   params.ClaimID,
		StudentID: params.StudentID,
		Amount:    params.Amount,
		CreatedAt: s.now(),
	}
	if err := s.ledger.Reserve(ctx, res); err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) {
			return "", appErrors.Clonef(appErrors.ErrInsufficientCredits, "course %s no longer has %s credits available", params.CourseID, params.Amount.String())
		}
		if isCanceled(err) {
			return "", cancellation(err)
		}
		return "", appErrors.WrapAs(err, appErrors.ErrInternal, "failed to reserve credits")
	}
	s.logger.Debug("credits reserved",
		zap.String("reservation_id", res.ID),
		zap.String("course_id", res.CourseID),
		zap.String("claim_id", res.ClaimID),
		zap.String("amount", res.Amount.String()))
	return res.ID, nil
}

// Release returns a reservation's credits to its course. Releasing a reservation
// that is already released or committed is a no-op reported as false.
func (s *CreditLedgerService) Release(ctx context.Context, reservationID, reason string) (bool, error) {
	res, err := s.ledger.GetReservation(ctx, reservationID)
	if err != nil {
		return false, lookupError(err, "reservation")
	}
	if res.Status != models.ReservationActive {
		return false, nil
	}
	unlock, err := acquire(ctx, s.locks, scopeCourse, res.CourseID)
	if err != nil {
		return false, err
	}
	defer unlock()

	released, err := s.ledger.Release(ctx, reservationID, s.now())
	if err != nil {
		if isCanceled(err) {
			return false, cancellation(err)
		}
		return false, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to release credits")
	}
	if released {
		s.metrics.RecordRelease(reason, 1)
		s.logger.Info("credits released",
			zap.String("reservation_id", res.ID),
			zap.String("course_id", res.CourseID),
			zap.String("claim_id", res.ClaimID),
			zap.String("amount", res.Amount.String()),
			zap.String("reason", reason))
	}
	return released, nil
}

// AvailableCredits returns a snapshot of a course's unconsumed credits.
func (s *CreditLedgerService) AvailableCredits(ctx context.Context, courseID string) (decimal.Decimal, error) {
	slice, err := s.ledger.Slice(ctx, courseID)
	if err != nil {
		return decimal.Zero, lookupError(err, "course")
	}
	return slice.Available(), nil
}

// Balance exposes a course's credit slice.
func (s *CreditLedgerService) Balance(ctx context.Context, session models.Session, courseID string) (*dto.CourseBalanceResponse, error) {
	slice, err := s.ledger.Slice(ctx, courseID)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	if !canSeeStudent(session, slice.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another student")
	}
	return &dto.CourseBalanceResponse{
		CourseID:         slice.CourseID,
		TotalCredits:     slice.TotalCredits,
		CreditsConsumed:  slice.CreditsConsumed,
		CreditsAvailable: slice.Available(),
	}, nil
}

// Course fetches a recorded course.
func (s *CreditLedgerService) Course(ctx context.Context, session models.Session, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	if !canSeeStudent(session, course.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another student")
	}
	return course, nil
}

// StudentCourses lists a student's recorded courses, oldest completion first.
func (s *CreditLedgerService) StudentCourses(ctx context.Context, session models.Session, studentID string) ([]models.Course, error) {
	if !canSeeStudent(session, studentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own courses")
	}
	courses, err := s.courses.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, lookupError(err, "courses")
	}
	return courses, nil
}

// SlicesForUmbrella lists the student's slices eligible for an umbrella, FIFO ordered.
func (s *CreditLedgerService) SlicesForUmbrella(ctx context.Context, studentID, umbrellaKey string) ([]models.CreditSlice, error) {
	slices, err := s.ledger.ListSlices(ctx, studentID, umbrellaKey)
	if err != nil {
		return nil, lookupError(err, "credit slices")
	}
	return slices, nil
}

// StudentSummary aggregates a student's credits per umbrella.
func (s *CreditLedgerService) StudentSummary(ctx context.Context, session models.Session, studentID string) (*models.StudentCreditSummary, error) {
	if !canSeeStudent(session, studentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own credits")
	}
	slices, err := s.ledger.ListSlices(ctx, studentID, "")
	if err != nil {
		return nil, lookupError(err, "credit slices")
	}
	summary := &models.StudentCreditSummary{StudentID: studentID, Umbrellas: make(map[string]models.UmbrellaCredits)}
	for _, slice := range slices {
		totals := summary.Umbrellas[slice.UmbrellaKey]
		totals.Courses++
		totals.Total = totals.Total.Add(slice.TotalCredits)
		totals.Consumed = totals.Consumed.Add(slice.CreditsConsumed)
		totals.Available = totals.Available.Add(slice.Available())
		summary.Umbrellas[slice.UmbrellaKey] = totals
	}
	return summary, nil
}

// ClaimReservations lists the reservations made for a claim.
func (s *CreditLedgerService) ClaimReservations(ctx context.Context, claimID string) ([]models.Reservation, error) {
	list, err := s.ledger.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, lookupError(err, fmt.Sprintf("reservations of claim %s", claimID))
	}
	return list, nil
}

func normalizeUmbrella(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
