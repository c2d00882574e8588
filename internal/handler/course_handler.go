package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumistudy/lumi-backend/internal/middleware"
	"github.com/lumistudy/lumi-backend/internal/response"
	"github.com/lumistudy/lumi-backend/internal/service"
)

// CourseHandler handles learner-facing course progress endpoints.
type CourseHandler struct {
	courses service.CourseStore
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courses service.CourseStore) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// GetProgress godoc
// GET /api/v1/learner/courses/:course_id/progress
// Returns where the learner is in the curriculum: the pointer, the current
// topic, and any assessment attached to the course.
func (h *CourseHandler) GetProgress(c *gin.Context) {
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

	course, err := h.courses.GetByID(c.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if course.LearnerID != claims.LearnerID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	currentTopic := ""
	currentLesson := ""
	finished := course.CurrentLessonIndex >= len(course.Lessons)
	if !finished {
		lesson := course.Lessons[course.CurrentLessonIndex]
		currentLesson = lesson.Title
		if course.CurrentTopicIndex < len(lesson.Topics) {
			currentTopic = lesson.Topics[course.CurrentTopicIndex]
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"course_id":            course.ID,
		"title":                course.Title,
		"current_lesson_index": course.CurrentLessonIndex,
		"current_topic_index":  course.CurrentTopicIndex,
		"current_lesson":       currentLesson,
		"current_topic":        currentTopic,
		"finished":             finished,
		"lessons":              course.Lessons,
		"assessment": gin.H{
			"in_progress_id":    course.Metadata.InProgressAssessmentID,
			"in_progress_topic": course.Metadata.InProgressAssessmentTopic,
			"completed_id":      course.Metadata.CompletedAssessmentID,
			"pending_topic":     course.Metadata.PendingAssessmentTopic,
		},
	})
}
