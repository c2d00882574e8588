package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumistudy/lumi-backend/internal/itemwriter"
	"github.com/lumistudy/lumi-backend/internal/middleware"
	"github.com/lumistudy/lumi-backend/internal/model"
	"github.com/lumistudy/lumi-backend/internal/response"
	"github.com/lumistudy/lumi-backend/internal/service"
	"github.com/lumistudy/lumi-backend/internal/validator"
)

// AssessmentHandler handles learner-facing assessment endpoints.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(assessmentService *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessmentService: assessmentService}
}

// Create godoc
// POST /api/v1/learner/courses/:course_id/assessments
// Generates a new assessment for the course's current topic.
func (h *AssessmentHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	courseID, err := uuid.Parse(c.Param("course_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, items, err := h.assessmentService.Create(c.Request.Context(), claims.LearnerID, courseID, req)
	if err != nil {
		h.failAssessmentError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"assessment": a,
		"items":      itemsForLearner(items),
	})
}

// Get godoc
// GET /api/v1/learner/assessments/:assessment_id
// Returns the assessment with its items. Correct answers appear only after
// grading.
func (h *AssessmentHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	a, items, err := h.assessmentService.Get(c.Request.Context(), claims.LearnerID, assessmentID)
	if err != nil {
		h.failAssessmentError(c, err)
		return
	}

	if a.Status == model.AssessmentStatusInProgress {
		response.Success(c, http.StatusOK, gin.H{"assessment": a, "items": itemsForLearner(items)})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assessment": a, "items": items})
}

// RecordAnswer godoc
// PUT /api/v1/learner/assessments/:assessment_id/items/:item_id/answer
// Autosaves a single answer.
func (h *AssessmentHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.assessmentService.RecordAnswer(c.Request.Context(), claims.LearnerID, assessmentID, itemID, req.Answer); err != nil {
		h.failAssessmentError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// Submit godoc
// POST /api/v1/learner/assessments/:assessment_id/submit
// Grades the assessment, finalizes it, and advances the course on a pass.
func (h *AssessmentHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.assessmentService.Submit(c.Request.Context(), claims.LearnerID, assessmentID, req.Answers)
	if err != nil {
		h.failAssessmentError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetSummary godoc
// GET /api/v1/learner/assessments/:assessment_id/summary
// Returns the diagnostic summary for a graded assessment.
func (h *AssessmentHandler) GetSummary(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	summary, err := h.assessmentService.GetSummary(c.Request.Context(), claims.LearnerID, assessmentID)
	if err != nil {
		h.failAssessmentError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// failAssessmentError maps service errors to HTTP responses.
func (h *AssessmentHandler) failAssessmentError(c *gin.Context, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		response.FailWithDetails(c, http.StatusConflict, response.ErrAssessmentInProgress,
			gin.H{"existing_assessment_id": conflict.ExistingID})
	case errors.Is(err, itemwriter.ErrGenerationFailed):
		response.Fail(c, http.StatusBadGateway, response.ErrGenerationFailed)
	case errors.Is(err, service.ErrNotOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrAssessmentFinalized):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentFinalized)
	case errors.Is(err, service.ErrAssessmentInProgress):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentInProgress)
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func itemsForLearner(items []model.AssessmentItem) []model.ItemForLearner {
	out := make([]model.ItemForLearner, 0, len(items))
	for _, it := range items {
		out = append(out, model.ItemForLearner{
			ID:           it.ID,
			ItemOrder:    it.ItemOrder,
			ItemType:     it.ItemType,
			QuestionText: it.QuestionText,
			UserAnswer:   it.UserAnswer,
			Concepts:     it.Concepts,
		})
	}
	return out
}
