package model

import (
	"time"

	"github.com/google/uuid"
)

// ItemType enumerates the supported question formats.
type ItemType string

const (
	ItemTypeMultipleChoice ItemType = "multiple_choice"
	ItemTypeTrueFalse      ItemType = "true_false"
	ItemTypeShortAnswer    ItemType = "short_answer"
	ItemTypeCodingExercise ItemType = "coding_exercise"
	ItemTypeFillBlank      ItemType = "fill_blank"
)

// KnownItemType reports whether t is one of the supported item types.
func KnownItemType(t ItemType) bool {
	switch t {
	case ItemTypeMultipleChoice, ItemTypeTrueFalse, ItemTypeShortAnswer,
		ItemTypeCodingExercise, ItemTypeFillBlank:
		return true
	}
	return false
}

// AssessmentItem is a single question within an assessment. Question text and
// the correct answer are immutable after creation; the learner's answer is
// mutable until grading, and grading results are written exactly once per
// finalize pass.
type AssessmentItem struct {
	ID            uuid.UUID `json:"id"`
	AssessmentID  uuid.UUID `json:"assessment_id"`
	ItemOrder     int       `json:"item_order"`
	ItemType      ItemType  `json:"item_type"`
	QuestionText  string    `json:"question_text"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	UserAnswer    string    `json:"user_answer,omitempty"`
	IsCorrect     *bool     `json:"is_correct,omitempty"`
	ErrorType     *string   `json:"error_type,omitempty"`

	// Concepts is derived from the assessment's metadata taxonomy on read.
	// It is not persisted on the item row.
	Concepts []string `json:"concepts,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemForLearner is an item as exposed while the assessment is still in
// progress: no correct answer, no grading fields.
type ItemForLearner struct {
	ID           uuid.UUID `json:"id"`
	ItemOrder    int       `json:"item_order"`
	ItemType     ItemType  `json:"item_type"`
	QuestionText string    `json:"question_text"`
	UserAnswer   string    `json:"user_answer,omitempty"`
	Concepts     []string  `json:"concepts,omitempty"`
}
