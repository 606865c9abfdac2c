package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

type courseServiceStub struct {
	recorded  dto.RecordCourseRequest
	recordErr error
	imported  int
	importErr error
}

func (s *courseServiceStub) RecordCourse(ctx context.Context, session models.Session, req dto.RecordCourseRequest) (*models.CreditSlice, error) {
	s.recorded = req
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return &models.CreditSlice{CourseID: "course-1", TotalCredits: decimal.NewFromInt(4)}, nil
}

func (s *courseServiceStub) Course(ctx context.Context, session models.Session, courseID string) (*models.Course, error) {
	return &models.Course{ID: courseID}, nil
}

func (s *courseServiceStub) Balance(ctx context.Context, session models.Session, courseID string) (*dto.CourseBalanceResponse, error) {
	return &dto.CourseBalanceResponse{CourseID: courseID, TotalCredits: decimal.NewFromInt(4), CreditsAvailable: decimal.NewFromInt(1)}, nil
}

func (s *courseServiceStub) StudentSummary(ctx context.Context, session models.Session, studentID string) (*models.StudentCreditSummary, error) {
	if session.Actor.Role == models.RoleStudent && session.Actor.ID != studentID {
		return nil, appErrors.ErrForbidden
	}
	return &models.StudentCreditSummary{StudentID: studentID}, nil
}

func (s *courseServiceStub) StudentCourses(ctx context.Context, session models.Session, studentID string) ([]models.Course, error) {
	return []models.Course{{ID: "course-1", StudentID: studentID}}, nil
}

func (s *courseServiceStub) Submit(ctx context.Context, session models.Session, req dto.ImportCoursesRequest) (*models.CourseImportBatch, error) {
	if s.importErr != nil {
		return nil, s.importErr
	}
	s.imported = len(req.Records)
	return &models.CourseImportBatch{ID: "batch-1", Status: models.ImportQueued, Total: len(req.Records)}, nil
}

func (s *courseServiceStub) Get(ctx context.Context, id string) (*models.CourseImportBatch, error) {
	return &models.CourseImportBatch{ID: id, Status: models.ImportCompleted}, nil
}

const courseBody = `{"student_id":"student-1","organization":"Fire Academy","umbrella_key":"safety",
"theory_hours":"30","practical_hours":"60","no_of_days":5,"completion_date":"2024-01-15T00:00:00Z"}`

func TestCourseHandlerRecord(t *testing.T) {
	stub := &courseServiceStub{}
	handler := NewCourseHandler(stub, stub)

	c, w := newContext(http.MethodPost, "/courses", []byte(courseBody), adminClaims)
	handler.Record(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, stub.recorded.TheoryHours.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 5, stub.recorded.NoOfDays)
}

func TestCourseHandlerRecordInvalidHours(t *testing.T) {
	stub := &courseServiceStub{recordErr: appErrors.Clone(appErrors.ErrInvalidHours, "hours must not be negative")}
	handler := NewCourseHandler(stub, stub)

	c, w := newContext(http.MethodPost, "/courses", []byte(courseBody), adminClaims)
	handler.Record(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrInvalidHours.Code)
}

func TestCourseHandlerImport(t *testing.T) {
	stub := &courseServiceStub{}
	handler := NewCourseHandler(stub, stub)

	c, w := newContext(http.MethodPost, "/courses/import", []byte(`{"records":[`+courseBody+`,`+courseBody+`]}`), adminClaims)
	handler.Import(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 2, stub.imported)

	stub.importErr = appErrors.Wrap(errors.New("queue full"), appErrors.ErrContention.Code, appErrors.ErrContention.Status, "import queue is busy")
	c, w = newContext(http.MethodPost, "/courses/import", []byte(`{"records":[`+courseBody+`]}`), adminClaims)
	handler.Import(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCourseHandlerStudentCredits(t *testing.T) {
	stub := &courseServiceStub{}
	handler := NewCourseHandler(stub, stub)

	c, w := newContext(http.MethodGet, "/students/student-2/credits", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "student-2"}}
	handler.StudentCredits(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newContext(http.MethodGet, "/students/student-1/credits", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "student-1"}}
	handler.StudentCredits(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
