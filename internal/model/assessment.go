package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AssessmentStatus enumerates the possible states of an assessment.
// An assessment starts in_progress and is finalized exactly once into
// completed; a failed assessment may be re-graded until it passes.
type AssessmentStatus string

const (
	AssessmentStatusInProgress AssessmentStatus = "in_progress"
	AssessmentStatusCompleted  AssessmentStatus = "completed"
	AssessmentStatusFailed     AssessmentStatus = "failed"
)

// Assessment represents one mastery check owned by a (learner, course) pair.
// At most one assessment per pair may be in_progress at any time; the
// assessments table enforces this with a partial unique index.
type Assessment struct {
	ID           uuid.UUID          `json:"id"`
	LearnerID    uuid.UUID          `json:"learner_id"`
	CourseID     uuid.UUID          `json:"course_id"`
	Status       AssessmentStatus   `json:"status"`
	TotalItems   int                `json:"total_items"`
	OverallScore *float64           `json:"overall_score,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Metadata     AssessmentMetadata `json:"metadata"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// AssessmentMetadata is the free-form record stored on the assessment row.
// It owns the concept taxonomy, the curriculum context the assessment was
// generated for, the latest structured evaluation, and the cached summary.
type AssessmentMetadata struct {
	Concepts    Concepts `json:"concepts,omitempty"`
	Topic       string   `json:"topic,omitempty"`
	LessonIndex *int     `json:"lesson_index,omitempty"`
	TopicIndex  *int     `json:"topic_index,omitempty"`

	// ItemConcepts maps 1-based item order (as a JSON object key) to the
	// concepts that item exercises. Items re-attach their concepts from
	// this map on read; there is no per-item concept column.
	ItemConcepts map[string][]string `json:"item_concepts,omitempty"`

	EvaluationData json.RawMessage `json:"evaluation_data,omitempty"`
	FailedConcepts Concepts        `json:"failed_concepts,omitempty"`

	// Summary is the memoized natural-language diagnostic summary.
	// Empty until requested once; never regenerated while cached.
	Summary string `json:"summary,omitempty"`
}

// Concepts is a list of concept labels; order-insignificant.
type Concepts []string

// CreateAssessmentRequest is the payload for generating a new assessment.
type CreateAssessmentRequest struct {
	Topic             string `json:"topic" binding:"required,min=1,max=255"`
	LessonTitle       string `json:"lesson_title" binding:"omitempty,max=255"`
	LessonDescription string `json:"lesson_description" binding:"omitempty,max=2000"`
	LessonIndex       *int   `json:"lesson_index" binding:"omitempty,min=0"`
	TopicIndex        *int   `json:"topic_index" binding:"omitempty,min=0"`
}

// RecordAnswerRequest is the payload for autosaving a single answer.
type RecordAnswerRequest struct {
	Answer string `json:"answer" binding:"required,max=20000"`
}

// SubmitAssessmentRequest carries the final answers, keyed by item id.
// Items missing from the map are graded against their last autosaved answer.
type SubmitAssessmentRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}
