package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/response"
)

type courseLedger interface {
	RecordCourse(ctx context.Context, session models.Session, req dto.RecordCourseRequest) (*models.CreditSlice, error)
	Course(ctx context.Context, session models.Session, courseID string) (*models.Course, error)
	Balance(ctx context.Context, session models.Session, courseID string) (*dto.CourseBalanceResponse, error)
	StudentSummary(ctx context.Context, session models.Session, studentID string) (*models.StudentCreditSummary, error)
	StudentCourses(ctx context.Context, session models.Session, studentID string) ([]models.Course, error)
}

type courseImporter interface {
	Submit(ctx context.Context, session models.Session, req dto.ImportCoursesRequest) (*models.CourseImportBatch, error)
	Get(ctx context.Context, id string) (*models.CourseImportBatch, error)
}

// CourseHandler exposes course ingestion and credit balance endpoints.
type CourseHandler struct {
	ledger  courseLedger
	imports courseImporter
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(ledger courseLedger, imports courseImporter) *CourseHandler {
	return &CourseHandler{ledger: ledger, imports: imports}
}

// Record godoc
// @Summary Record a completed course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.RecordCourseRequest true "Course record"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Record(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RecordCourseRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	slice, err := h.ledger.RecordCourse(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slice)
}

// Get godoc
// @Summary Get a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.ledger.Course(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Balance godoc
// @Summary Remaining credits of a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/balance [get]
func (h *CourseHandler) Balance(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// StudentCredits godoc
// @Summary Credit totals per umbrella for a student
// @Tags Courses
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits [get]
func (h *CourseHandler) StudentCredits(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.ledger.StudentSummary(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// StudentCourses godoc
// @Summary Courses recorded for a student
// @Tags Courses
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses [get]
func (h *CourseHandler) StudentCourses(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	courses, err := h.ledger.StudentCourses(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Import godoc
// @Summary Queue a bulk course import
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.ImportCoursesRequest true "Course records"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses/import [post]
func (h *CourseHandler) Import(c *gin.Context) {
	session, err := sessionFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ImportCoursesRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	batch, err := h.imports.Submit(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, batch)
}

// ImportStatus godoc
// @Summary Import batch outcome
// @Tags Courses
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /course-imports/{id} [get]
func (h *CourseHandler) ImportStatus(c *gin.Context) {
	batch, err := h.imports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}
