package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumistudy/lumi-backend/internal/model"
)

// ErrInProgressExists is returned by CreateWithItems when the learner
// already has an in-progress assessment for the course. The partial unique
// index on (learner_id, course_id) enforces this regardless of races.
var ErrInProgressExists = errors.New("an in-progress assessment already exists for this course")

// ItemGrade is one per-item grading write for FinalizeItems.
type ItemGrade struct {
	ItemID     uuid.UUID
	UserAnswer string
	IsCorrect  bool
	ErrorType  *string
}

// ItemWriteResult reports the outcome of one per-item grading write.
type ItemWriteResult struct {
	ItemID uuid.UUID
	Err    error
}

// AssessmentRepository handles assessment and assessment item data access.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

// CreateWithItems inserts an assessment and all of its items in one
// transaction. Either everything lands or nothing does. Returns
// ErrInProgressExists when the conflict target suppressed the insert.
func (r *AssessmentRepository) CreateWithItems(ctx context.Context, a *model.Assessment, items []model.AssessmentItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO assessments (learner_id, course_id, status, total_items, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, course_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id, created_at, updated_at`,
		a.LearnerID, a.CourseID, model.AssessmentStatusInProgress, len(items), a.Metadata,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInProgressExists
	}
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	a.Status = model.AssessmentStatusInProgress
	a.TotalItems = len(items)

	batch := &pgx.Batch{}
	for i := range items {
		items[i].AssessmentID = a.ID
		batch.Queue(
			`INSERT INTO assessment_items (assessment_id, item_order, item_type, question_text, correct_answer)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			a.ID, items[i].ItemOrder, items[i].ItemType, items[i].QuestionText, items[i].CorrectAnswer)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range items {
		if err := br.QueryRow().Scan(&items[i].ID); err != nil {
			br.Close()
			return fmt.Errorf("insert item %d: %w", items[i].ItemOrder, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// FindInProgress returns the learner's in-progress assessment for a course,
// or nil when there is none.
func (r *AssessmentRepository) FindInProgress(ctx context.Context, learnerID, courseID uuid.UUID) (*model.Assessment, error) {
	a, err := r.scanAssessment(r.pool.QueryRow(ctx,
		assessmentColumns+`
		 FROM assessments
		 WHERE learner_id = $1 AND course_id = $2 AND status = $3`,
		learnerID, courseID, model.AssessmentStatusInProgress))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetByID retrieves one assessment.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return r.scanAssessment(r.pool.QueryRow(ctx,
		assessmentColumns+` FROM assessments WHERE id = $1`, id))
}

const assessmentColumns = `SELECT id, learner_id, course_id, status, total_items, overall_score, completed_at, metadata, created_at, updated_at`

func (r *AssessmentRepository) scanAssessment(row pgx.Row) (*model.Assessment, error) {
	a := &model.Assessment{}
	err := row.Scan(&a.ID, &a.LearnerID, &a.CourseID, &a.Status, &a.TotalItems,
		&a.OverallScore, &a.CompletedAt, &a.Metadata, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListItems returns an assessment's items in item order, with each item's
// concepts re-attached from the assessment metadata.
func (r *AssessmentRepository) ListItems(ctx context.Context, a *model.Assessment) ([]model.AssessmentItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, assessment_id, item_order, item_type, question_text, correct_answer,
		        COALESCE(user_answer, ''), is_correct, error_type, created_at, updated_at
		 FROM assessment_items
		 WHERE assessment_id = $1
		 ORDER BY item_order`, a.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.AssessmentItem
	for rows.Next() {
		var it model.AssessmentItem
		if err := rows.Scan(&it.ID, &it.AssessmentID, &it.ItemOrder, &it.ItemType,
			&it.QuestionText, &it.CorrectAnswer, &it.UserAnswer, &it.IsCorrect,
			&it.ErrorType, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Concepts = a.Metadata.ItemConcepts[strconv.Itoa(it.ItemOrder)]
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem retrieves one item scoped to its assessment.
func (r *AssessmentRepository) GetItem(ctx context.Context, assessmentID, itemID uuid.UUID) (*model.AssessmentItem, error) {
	it := &model.AssessmentItem{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, assessment_id, item_order, item_type, question_text, correct_answer,
		        COALESCE(user_answer, ''), is_correct, error_type, created_at, updated_at
		 FROM assessment_items
		 WHERE id = $1 AND assessment_id = $2`, itemID, assessmentID,
	).Scan(&it.ID, &it.AssessmentID, &it.ItemOrder, &it.ItemType, &it.QuestionText,
		&it.CorrectAnswer, &it.UserAnswer, &it.IsCorrect, &it.ErrorType,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// RecordAnswer autosaves a learner's answer. Only user_answer changes;
// repeated calls with the same value are harmless.
func (r *AssessmentRepository) RecordAnswer(ctx context.Context, assessmentID, itemID uuid.UUID, answer string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assessment_items
		 SET user_answer = $1, updated_at = NOW()
		 WHERE id = $2 AND assessment_id = $3`,
		answer, itemID, assessmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordAnswerIfInProgress autosaves an answer only while the assessment is
// still in progress. Returns false when the row was not updated, either
// because the item is unknown or the assessment reached a terminal state.
func (r *AssessmentRepository) RecordAnswerIfInProgress(ctx context.Context, assessmentID, itemID uuid.UUID, answer string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assessment_items i
		 SET user_answer = $1, updated_at = NOW()
		 FROM assessments a
		 WHERE i.id = $2 AND i.assessment_id = $3
		   AND a.id = i.assessment_id AND a.status = $4`,
		answer, itemID, assessmentID, model.AssessmentStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizeItems writes grading results item by item, reporting each write's
// outcome instead of aborting on the first failure.
func (r *AssessmentRepository) FinalizeItems(ctx context.Context, assessmentID uuid.UUID, grades []ItemGrade) []ItemWriteResult {
	results := make([]ItemWriteResult, 0, len(grades))

	batch := &pgx.Batch{}
	for _, g := range grades {
		batch.Queue(
			`UPDATE assessment_items
			 SET user_answer = $1, is_correct = $2, error_type = $3, updated_at = NOW()
			 WHERE id = $4 AND assessment_id = $5`,
			g.UserAnswer, g.IsCorrect, g.ErrorType, g.ItemID, assessmentID)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, g := range grades {
		tag, err := br.Exec()
		if err == nil && tag.RowsAffected() == 0 {
			err = pgx.ErrNoRows
		}
		results = append(results, ItemWriteResult{ItemID: g.ItemID, Err: err})
	}
	return results
}

// FinalizeAssessment writes the terminal verdict: status, overall score,
// completion time and the updated metadata.
func (r *AssessmentRepository) FinalizeAssessment(ctx context.Context, id uuid.UUID, status model.AssessmentStatus, overallScore float64, completedAt *time.Time, md model.AssessmentMetadata) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assessments
		 SET status = $1, overall_score = $2, completed_at = $3, metadata = $4, updated_at = NOW()
		 WHERE id = $5`,
		status, overallScore, completedAt, md, id)
	return err
}

// UpdateMetadata replaces the assessment's metadata record.
func (r *AssessmentRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, md model.AssessmentMetadata) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE assessments SET metadata = $1, updated_at = NOW() WHERE id = $2`,
		md, id)
	return err
}
