package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lumistudy/lumi-backend/internal/model"
)

// ProgressionService moves the course's curriculum pointer after a passed
// assessment.
type ProgressionService struct {
	courses CourseStore
	log     zerolog.Logger
}

// NewProgressionService creates a new ProgressionService.
func NewProgressionService(courses CourseStore, log zerolog.Logger) *ProgressionService {
	return &ProgressionService{
		courses: courses,
		log:     log.With().Str("component", "progression_service").Logger(),
	}
}

// NextPosition computes the pointer position after the current topic is
// mastered: the next topic of the same lesson, or the first topic of the
// next lesson when the current topic is the lesson's last. Passing the last
// topic of the last lesson moves the lesson index past the end, which is
// how a finished course reads.
func NextPosition(lessons []model.Lesson, lessonIndex, topicIndex int) (int, int) {
	if lessonIndex < 0 || lessonIndex >= len(lessons) {
		return lessonIndex + 1, 0
	}
	if topicIndex >= len(lessons[lessonIndex].Topics)-1 {
		return lessonIndex + 1, 0
	}
	return lessonIndex, topicIndex + 1
}

// AdvancePointer persists the course's next pointer position.
func (s *ProgressionService) AdvancePointer(ctx context.Context, course *model.Course) error {
	nextLesson, nextTopic := NextPosition(course.Lessons, course.CurrentLessonIndex, course.CurrentTopicIndex)

	if err := s.courses.UpdateProgress(ctx, course.ID, nextLesson, nextTopic); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	s.log.Info().
		Str("course_id", course.ID.String()).
		Int("lesson_index", nextLesson).
		Int("topic_index", nextTopic).
		Msg("Curriculum pointer advanced")

	course.CurrentLessonIndex = nextLesson
	course.CurrentTopicIndex = nextTopic
	return nil
}
