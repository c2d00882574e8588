package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumistudy/lumi-backend/internal/model"
)

// CourseRepository handles course data access.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// GetByID retrieves one course with its lesson plan.
func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	c := &model.Course{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, learner_id, title, COALESCE(description, ''), lessons,
		        current_lesson_index, current_topic_index, metadata, created_at, updated_at
		 FROM courses
		 WHERE id = $1`, id,
	).Scan(&c.ID, &c.LearnerID, &c.Title, &c.Description, &c.Lessons,
		&c.CurrentLessonIndex, &c.CurrentTopicIndex, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateProgress moves the course's curriculum pointer.
func (r *CourseRepository) UpdateProgress(ctx context.Context, id uuid.UUID, lessonIndex, topicIndex int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE courses
		 SET current_lesson_index = $1, current_topic_index = $2, updated_at = NOW()
		 WHERE id = $3`,
		lessonIndex, topicIndex, id)
	return err
}

// UpdateMetadata replaces the course's metadata record.
func (r *CourseRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, md model.CourseMetadata) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE courses SET metadata = $1, updated_at = NOW() WHERE id = $2`,
		md, id)
	return err
}
