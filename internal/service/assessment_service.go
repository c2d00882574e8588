package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lumistudy/lumi-backend/internal/itemwriter"
	"github.com/lumistudy/lumi-backend/internal/judge"
	"github.com/lumistudy/lumi-backend/internal/llm"
	"github.com/lumistudy/lumi-backend/internal/model"
	"github.com/lumistudy/lumi-backend/internal/repository"
)

// PassThreshold is the overall score (percent) at or above which an
// assessment passes.
const PassThreshold = 80.0

// Common assessment errors.
var (
	ErrNotOwner             = errors.New("resource belongs to another learner")
	ErrAssessmentFinalized  = errors.New("assessment is already completed")
	ErrAssessmentInProgress = errors.New("assessment has not been graded yet")
)

// ConflictError carries the id of the assessment that blocked creation.
type ConflictError struct {
	ExistingID uuid.UUID
}

func (e *ConflictError) Error() string {
	return "an in-progress assessment already exists for this course"
}

// AssessmentStore is the persistence surface the service needs for
// assessments and their items.
type AssessmentStore interface {
	CreateWithItems(ctx context.Context, a *model.Assessment, items []model.AssessmentItem) error
	FindInProgress(ctx context.Context, learnerID, courseID uuid.UUID) (*model.Assessment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
	ListItems(ctx context.Context, a *model.Assessment) ([]model.AssessmentItem, error)
	GetItem(ctx context.Context, assessmentID, itemID uuid.UUID) (*model.AssessmentItem, error)
	RecordAnswer(ctx context.Context, assessmentID, itemID uuid.UUID, answer string) error
	FinalizeItems(ctx context.Context, assessmentID uuid.UUID, grades []repository.ItemGrade) []repository.ItemWriteResult
	FinalizeAssessment(ctx context.Context, id uuid.UUID, status model.AssessmentStatus, overallScore float64, completedAt *time.Time, md model.AssessmentMetadata) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, md model.AssessmentMetadata) error
}

// CourseStore is the persistence surface the service needs for courses.
type CourseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, lessonIndex, topicIndex int) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, md model.CourseMetadata) error
}

// SubmitResult is everything a submission produced.
type SubmitResult struct {
	Assessment     *model.Assessment  `json:"assessment"`
	Items          []judge.Evaluation `json:"items"`
	OverallScore   float64            `json:"overall_score"`
	CorrectCount   int                `json:"correct_count"`
	TotalItems     int                `json:"total_items"`
	Passed         bool               `json:"passed"`
	FailedConcepts []string           `json:"failed_concepts"`
	Degraded       bool               `json:"degraded,omitempty"`

	// PersistFailures lists item ids whose grading write failed. The verdict
	// above is still authoritative.
	PersistFailures []uuid.UUID `json:"persist_failures,omitempty"`
}

// AssessmentService orchestrates the assessment lifecycle: generation,
// answering, grading, and the resulting curriculum progression.
type AssessmentService struct {
	assessments AssessmentStore
	courses     CourseStore
	generator   itemwriter.Generator
	grader      judge.Grader
	summarizer  llm.Client
	progression *ProgressionService
	log         zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	assessments AssessmentStore,
	courses CourseStore,
	generator itemwriter.Generator,
	grader judge.Grader,
	summarizer llm.Client,
	progression *ProgressionService,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		assessments: assessments,
		courses:     courses,
		generator:   generator,
		grader:      grader,
		summarizer:  summarizer,
		progression: progression,
		log:         log.With().Str("component", "assessment_service").Logger(),
	}
}

// Create generates a new assessment for the course's current topic. Nothing
// is persisted when generation fails. At most one in-progress assessment per
// (learner, course) may exist; a conflict reports the existing assessment's id.
func (s *AssessmentService) Create(ctx context.Context, learnerID, courseID uuid.UUID, req model.CreateAssessmentRequest) (*model.Assessment, []model.AssessmentItem, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}
	if course.LearnerID != learnerID {
		return nil, nil, ErrNotOwner
	}

	if existing, err := s.assessments.FindInProgress(ctx, learnerID, courseID); err != nil {
		return nil, nil, err
	} else if existing != nil {
		return nil, nil, &ConflictError{ExistingID: existing.ID}
	}

	set, err := s.generator.Generate(ctx, itemwriter.CurriculumContext{
		LearningGoal:      course.Metadata.LearningGoal,
		Domain:            course.Metadata.Domain,
		Level:             course.Metadata.Level,
		CourseTitle:       course.Title,
		CourseDescription: course.Description,
		LessonTitle:       req.LessonTitle,
		LessonDescription: req.LessonDescription,
		Topic:             req.Topic,
		LessonIndex:       req.LessonIndex,
		TopicIndex:        req.TopicIndex,
	})
	if err != nil {
		return nil, nil, err
	}

	itemConcepts := make(map[string][]string, len(set.Items))
	items := make([]model.AssessmentItem, 0, len(set.Items))
	for _, gi := range set.Items {
		items = append(items, model.AssessmentItem{
			ItemOrder:     gi.ItemOrder,
			ItemType:      gi.ItemType,
			QuestionText:  gi.QuestionText,
			CorrectAnswer: gi.CorrectAnswer,
			Concepts:      gi.Concepts,
		})
		if len(gi.Concepts) > 0 {
			itemConcepts[strconv.Itoa(gi.ItemOrder)] = gi.Concepts
		}
	}

	a := &model.Assessment{
		LearnerID: learnerID,
		CourseID:  courseID,
		Metadata: model.AssessmentMetadata{
			Concepts:     set.Concepts,
			Topic:        req.Topic,
			LessonIndex:  req.LessonIndex,
			TopicIndex:   req.TopicIndex,
			ItemConcepts: itemConcepts,
		},
	}

	if err := s.assessments.CreateWithItems(ctx, a, items); err != nil {
		if errors.Is(err, repository.ErrInProgressExists) {
			// Lost a race; surface whoever won.
			if existing, ferr := s.assessments.FindInProgress(ctx, learnerID, courseID); ferr == nil && existing != nil {
				return nil, nil, &ConflictError{ExistingID: existing.ID}
			}
			return nil, nil, &ConflictError{}
		}
		return nil, nil, err
	}

	s.markCourseInProgress(ctx, course, a.ID, req.Topic)

	s.log.Info().
		Str("assessment_id", a.ID.String()).
		Str("course_id", courseID.String()).
		Str("topic", req.Topic).
		Int("items", len(items)).
		Msg("Assessment created")
	return a, items, nil
}

// markCourseInProgress records the new assessment on the course metadata and
// clears any pending marker. Best effort; the unique index is the real guard.
func (s *AssessmentService) markCourseInProgress(ctx context.Context, course *model.Course, assessmentID uuid.UUID, topic string) {
	md := course.Metadata
	md.InProgressAssessmentID = &assessmentID
	md.InProgressAssessmentTopic = topic
	md.PendingAssessmentTopic = ""
	md.PendingLessonIndex = nil
	md.PendingTopicIndex = nil

	if err := s.courses.UpdateMetadata(ctx, course.ID, md); err != nil {
		s.log.Warn().Err(err).Str("course_id", course.ID.String()).Msg("Failed to record in-progress assessment on course")
		return
	}
	course.Metadata = md
}

// Get retrieves an assessment with its items. Correct answers and grading
// fields stay hidden while the assessment is in progress.
func (s *AssessmentService) Get(ctx context.Context, learnerID, assessmentID uuid.UUID) (*model.Assessment, []model.AssessmentItem, error) {
	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, nil, err
	}
	if a.LearnerID != learnerID {
		return nil, nil, ErrNotOwner
	}

	items, err := s.assessments.ListItems(ctx, a)
	if err != nil {
		return nil, nil, err
	}

	if a.Status == model.AssessmentStatusInProgress {
		for i := range items {
			items[i].CorrectAnswer = ""
			items[i].IsCorrect = nil
			items[i].ErrorType = nil
		}
	}
	return a, items, nil
}

// VerifyInProgress checks that the assessment belongs to the learner and is
// still accepting answers.
func (s *AssessmentService) VerifyInProgress(ctx context.Context, learnerID, assessmentID uuid.UUID) error {
	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return err
	}
	if a.LearnerID != learnerID {
		return ErrNotOwner
	}
	if a.Status != model.AssessmentStatusInProgress {
		return ErrAssessmentFinalized
	}
	return nil
}

// RecordAnswer autosaves one answer. Only in-progress assessments accept
// answer changes.
func (s *AssessmentService) RecordAnswer(ctx context.Context, learnerID, assessmentID, itemID uuid.UUID, answer string) error {
	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return err
	}
	if a.LearnerID != learnerID {
		return ErrNotOwner
	}
	if a.Status != model.AssessmentStatusInProgress {
		return ErrAssessmentFinalized
	}

	return s.assessments.RecordAnswer(ctx, assessmentID, itemID, answer)
}

// Submit grades the assessment and finalizes it. Items absent from answers
// keep their last autosaved answer; items never answered grade as wrong.
// A failed assessment may be submitted again until it passes; a completed
// one never regrades.
func (s *AssessmentService) Submit(ctx context.Context, learnerID, assessmentID uuid.UUID, answers map[string]string) (*SubmitResult, error) {
	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.LearnerID != learnerID {
		return nil, ErrNotOwner
	}
	if a.Status == model.AssessmentStatusCompleted {
		return nil, ErrAssessmentFinalized
	}

	items, err := s.assessments.ListItems(ctx, a)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if ans, ok := answers[items[i].ID.String()]; ok {
			items[i].UserAnswer = ans
		}
	}

	judgeItems := make([]judge.Item, 0, len(items))
	for _, it := range items {
		judgeItems = append(judgeItems, judge.Item{
			ID:            it.ID.String(),
			ItemOrder:     it.ItemOrder,
			ItemType:      it.ItemType,
			QuestionText:  it.QuestionText,
			CorrectAnswer: it.CorrectAnswer,
			UserAnswer:    it.UserAnswer,
			Concepts:      it.Concepts,
		})
	}

	graded, err := s.grader.Grade(ctx, judgeItems)
	if err != nil {
		return nil, fmt.Errorf("grade submission: %w", err)
	}

	var scoreSum float64
	correctCount := 0
	for _, ev := range graded.Evaluations {
		scoreSum += ev.Score
		if ev.IsCorrect {
			correctCount++
		}
	}
	overall := 0.0
	if len(items) > 0 {
		overall = 100 * scoreSum / float64(len(items))
	}
	passed := overall >= PassThreshold

	// The verdict is decided; persistence must not die with the request.
	pctx := context.WithoutCancel(ctx)

	grades := make([]repository.ItemGrade, 0, len(items))
	for i, ev := range graded.Evaluations {
		correct := ev.IsCorrect
		grades = append(grades, repository.ItemGrade{
			ItemID:     items[i].ID,
			UserAnswer: items[i].UserAnswer,
			IsCorrect:  correct,
			ErrorType:  ev.ErrorType,
		})
	}

	var persistFailures []uuid.UUID
	for _, wr := range s.assessments.FinalizeItems(pctx, assessmentID, grades) {
		if wr.Err != nil {
			s.log.Error().Err(wr.Err).
				Str("assessment_id", assessmentID.String()).
				Str("item_id", wr.ItemID.String()).
				Msg("Failed to persist item grade")
			persistFailures = append(persistFailures, wr.ItemID)
		}
	}

	evalData, _ := json.Marshal(graded.Evaluations)
	md := a.Metadata
	md.EvaluationData = evalData
	md.FailedConcepts = graded.FailedConcepts
	md.Summary = ""

	status := model.AssessmentStatusFailed
	var completedAt *time.Time
	if passed {
		status = model.AssessmentStatusCompleted
		now := time.Now()
		completedAt = &now
	}

	if err := s.assessments.FinalizeAssessment(pctx, assessmentID, status, overall, completedAt, md); err != nil {
		return nil, fmt.Errorf("finalize assessment: %w", err)
	}
	a.Status = status
	a.OverallScore = &overall
	a.CompletedAt = completedAt
	a.Metadata = md

	if passed {
		s.completeCourseProgress(pctx, a)
	}

	s.log.Info().
		Str("assessment_id", assessmentID.String()).
		Float64("overall_score", overall).
		Bool("passed", passed).
		Bool("degraded", graded.Degraded).
		Msg("Assessment submitted")

	return &SubmitResult{
		Assessment:      a,
		Items:           graded.Evaluations,
		OverallScore:    overall,
		CorrectCount:    correctCount,
		TotalItems:      len(items),
		Passed:          passed,
		FailedConcepts:  graded.FailedConcepts,
		Degraded:        graded.Degraded,
		PersistFailures: persistFailures,
	}, nil
}

// completeCourseProgress clears the course's in-progress marker, records the
// completed assessment, and advances the curriculum pointer. Best effort;
// failures are logged, not surfaced, since the verdict is already persisted.
func (s *AssessmentService) completeCourseProgress(ctx context.Context, a *model.Assessment) {
	course, err := s.courses.GetByID(ctx, a.CourseID)
	if err != nil {
		s.log.Error().Err(err).Str("course_id", a.CourseID.String()).Msg("Failed to load course after pass")
		return
	}

	md := course.Metadata
	md.InProgressAssessmentID = nil
	md.InProgressAssessmentTopic = ""
	md.CompletedAssessmentID = &a.ID
	if err := s.courses.UpdateMetadata(ctx, course.ID, md); err != nil {
		s.log.Error().Err(err).Str("course_id", course.ID.String()).Msg("Failed to clear in-progress assessment on course")
	} else {
		course.Metadata = md
	}

	if err := s.progression.AdvancePointer(ctx, course); err != nil {
		s.log.Error().Err(err).Str("course_id", course.ID.String()).Msg("Failed to advance curriculum pointer")
	}
}

// GetSummary returns the natural-language diagnostic summary for a graded
// assessment, generating and memoizing it on first request.
func (s *AssessmentService) GetSummary(ctx context.Context, learnerID, assessmentID uuid.UUID) (string, error) {
	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		return "", err
	}
	if a.LearnerID != learnerID {
		return "", ErrNotOwner
	}
	if a.Status == model.AssessmentStatusInProgress {
		return "", ErrAssessmentInProgress
	}
	if a.Metadata.Summary != "" {
		return a.Metadata.Summary, nil
	}

	summary, err := s.summarizer.GenerateText(ctx, summarySystemPrompt, buildSummaryMessage(a))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	a.Metadata.Summary = summary
	if err := s.assessments.UpdateMetadata(ctx, assessmentID, a.Metadata); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Failed to cache summary")
	}
	return summary, nil
}
