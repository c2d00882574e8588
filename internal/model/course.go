package model

import (
	"time"

	"github.com/google/uuid"
)

// Lesson is one lesson in a course's curriculum tree.
type Lesson struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics"`
}

// Course is the curriculum entity this subsystem consumes and advances.
// The (current_lesson_index, current_topic_index) pair locates the learner's
// position in the lessons → topics tree. An index past the last lesson means
// the course is complete; rendering that state is the curriculum UI's job.
type Course struct {
	ID                 uuid.UUID      `json:"id"`
	LearnerID          uuid.UUID      `json:"learner_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Lessons            []Lesson       `json:"lessons"`
	CurrentLessonIndex int            `json:"current_lesson_index"`
	CurrentTopicIndex  int            `json:"current_topic_index"`
	Metadata           CourseMetadata `json:"metadata"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CourseMetadata holds the assessment bookkeeping fields this subsystem owns
// on the course row. Writes replace the owned fields wholesale; nothing is
// merged at read time.
type CourseMetadata struct {
	// Learning-path context forwarded to the item writer.
	LearningGoal string `json:"learning_goal,omitempty"`
	Domain       string `json:"domain,omitempty"`
	Level        string `json:"level,omitempty"`

	InProgressAssessmentID    *uuid.UUID `json:"in_progress_assessment_id,omitempty"`
	InProgressAssessmentTopic string     `json:"in_progress_assessment_topic,omitempty"`

	PendingAssessmentTopic string `json:"pending_assessment_topic,omitempty"`
	PendingLessonIndex     *int   `json:"pending_lesson_index,omitempty"`
	PendingTopicIndex      *int   `json:"pending_topic_index,omitempty"`

	CompletedAssessmentID *uuid.UUID `json:"completed_assessment_id,omitempty"`
}
