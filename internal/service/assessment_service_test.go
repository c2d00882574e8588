package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumistudy/lumi-backend/internal/itemwriter"
	"github.com/lumistudy/lumi-backend/internal/judge"
	"github.com/lumistudy/lumi-backend/internal/model"
	"github.com/lumistudy/lumi-backend/internal/repository"
)

type fakeAssessmentStore struct {
	assessments map[uuid.UUID]*model.Assessment
	items       map[uuid.UUID][]model.AssessmentItem

	createCalls int
	failItemIDs map[uuid.UUID]bool

	// hideFinds makes FindInProgress miss that many times, simulating a
	// concurrent writer landing between the lookup and the insert.
	hideFinds int
}

func newFakeAssessmentStore() *fakeAssessmentStore {
	return &fakeAssessmentStore{
		assessments: map[uuid.UUID]*model.Assessment{},
		items:       map[uuid.UUID][]model.AssessmentItem{},
	}
}

func (f *fakeAssessmentStore) CreateWithItems(ctx context.Context, a *model.Assessment, items []model.AssessmentItem) error {
	f.createCalls++
	for _, existing := range f.assessments {
		if existing.LearnerID == a.LearnerID && existing.CourseID == a.CourseID &&
			existing.Status == model.AssessmentStatusInProgress {
			return repository.ErrInProgressExists
		}
	}
	a.ID = uuid.New()
	a.Status = model.AssessmentStatusInProgress
	a.TotalItems = len(items)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	for i := range items {
		items[i].ID = uuid.New()
		items[i].AssessmentID = a.ID
	}
	cp := *a
	f.assessments[a.ID] = &cp
	f.items[a.ID] = append([]model.AssessmentItem(nil), items...)
	return nil
}

func (f *fakeAssessmentStore) FindInProgress(ctx context.Context, learnerID, courseID uuid.UUID) (*model.Assessment, error) {
	if f.hideFinds > 0 {
		f.hideFinds--
		return nil, nil
	}
	for _, a := range f.assessments {
		if a.LearnerID == learnerID && a.CourseID == courseID && a.Status == model.AssessmentStatusInProgress {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAssessmentStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a, ok := f.assessments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssessmentStore) ListItems(ctx context.Context, a *model.Assessment) ([]model.AssessmentItem, error) {
	return append([]model.AssessmentItem(nil), f.items[a.ID]...), nil
}

func (f *fakeAssessmentStore) GetItem(ctx context.Context, assessmentID, itemID uuid.UUID) (*model.AssessmentItem, error) {
	for _, it := range f.items[assessmentID] {
		if it.ID == itemID {
			cp := it
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAssessmentStore) RecordAnswer(ctx context.Context, assessmentID, itemID uuid.UUID, answer string) error {
	items := f.items[assessmentID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].UserAnswer = answer
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeAssessmentStore) FinalizeItems(ctx context.Context, assessmentID uuid.UUID, grades []repository.ItemGrade) []repository.ItemWriteResult {
	results := make([]repository.ItemWriteResult, 0, len(grades))
	items := f.items[assessmentID]
	for _, g := range grades {
		if f.failItemIDs[g.ItemID] {
			results = append(results, repository.ItemWriteResult{ItemID: g.ItemID, Err: pgx.ErrNoRows})
			continue
		}
		for i := range items {
			if items[i].ID == g.ItemID {
				correct := g.IsCorrect
				items[i].UserAnswer = g.UserAnswer
				items[i].IsCorrect = &correct
				items[i].ErrorType = g.ErrorType
			}
		}
		results = append(results, repository.ItemWriteResult{ItemID: g.ItemID})
	}
	return results
}

func (f *fakeAssessmentStore) FinalizeAssessment(ctx context.Context, id uuid.UUID, status model.AssessmentStatus, overallScore float64, completedAt *time.Time, md model.AssessmentMetadata) error {
	a, ok := f.assessments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Status = status
	a.OverallScore = &overallScore
	a.CompletedAt = completedAt
	a.Metadata = md
	return nil
}

func (f *fakeAssessmentStore) UpdateMetadata(ctx context.Context, id uuid.UUID, md model.AssessmentMetadata) error {
	a, ok := f.assessments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Metadata = md
	return nil
}

type fakeCourseStore struct {
	courses map[uuid.UUID]*model.Course
}

func newFakeCourseStore(courses ...*model.Course) *fakeCourseStore {
	f := &fakeCourseStore{courses: map[uuid.UUID]*model.Course{}}
	for _, c := range courses {
		f.courses[c.ID] = c
	}
	return f
}

func (f *fakeCourseStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCourseStore) UpdateProgress(ctx context.Context, id uuid.UUID, lessonIndex, topicIndex int) error {
	c, ok := f.courses[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.CurrentLessonIndex = lessonIndex
	c.CurrentTopicIndex = topicIndex
	return nil
}

func (f *fakeCourseStore) UpdateMetadata(ctx context.Context, id uuid.UUID, md model.CourseMetadata) error {
	c, ok := f.courses[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.Metadata = md
	return nil
}

type fakeGenerator struct {
	set   *itemwriter.GeneratedSet
	err   error
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, cc itemwriter.CurriculumContext) (*itemwriter.GeneratedSet, error) {
	f.calls++
	return f.set, f.err
}

// fakeGrader scores items positionally.
type fakeGrader struct {
	scores []float64
	err    error
}

func (f *fakeGrader) Grade(ctx context.Context, items []judge.Item) (*judge.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &judge.Result{}
	failed := map[string]bool{}
	for i, it := range items {
		score := f.scores[i]
		ev := judge.Evaluation{ItemID: it.ID, Score: score, IsCorrect: score >= 0.5, Concepts: it.Concepts}
		if score < 1 {
			et := "incorrect"
			ev.ErrorType = &et
		}
		if score < 0.5 {
			for _, c := range it.Concepts {
				failed[c] = true
			}
		}
		res.Evaluations = append(res.Evaluations, ev)
	}
	for c := range failed {
		res.FailedConcepts = append(res.FailedConcepts, c)
	}
	sort.Strings(res.FailedConcepts)
	return res, nil
}

type stubSummarizer struct {
	out   string
	err   error
	calls int
}

func (s *stubSummarizer) GenerateText(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.out, s.err
}

func fourItemSet() *itemwriter.GeneratedSet {
	return &itemwriter.GeneratedSet{
		Concepts: []string{"loops", "conditionals"},
		Items: []itemwriter.GeneratedItem{
			{ItemOrder: 1, ItemType: model.ItemTypeShortAnswer, QuestionText: "Q1", CorrectAnswer: "a1", Concepts: []string{"loops"}},
			{ItemOrder: 2, ItemType: model.ItemTypeShortAnswer, QuestionText: "Q2", CorrectAnswer: "a2", Concepts: []string{"loops"}},
			{ItemOrder: 3, ItemType: model.ItemTypeShortAnswer, QuestionText: "Q3", CorrectAnswer: "a3", Concepts: []string{"conditionals"}},
			{ItemOrder: 4, ItemType: model.ItemTypeShortAnswer, QuestionText: "Q4", CorrectAnswer: "a4", Concepts: []string{"conditionals"}},
		},
	}
}

func testCourse(learnerID uuid.UUID) *model.Course {
	return &model.Course{
		ID:        uuid.New(),
		LearnerID: learnerID,
		Title:     "Intro to Go",
		Lessons: []model.Lesson{
			{Title: "Basics", Topics: []string{"Variables", "Control flow"}},
			{Title: "Functions", Topics: []string{"Declarations"}},
		},
		CurrentLessonIndex: 0,
		CurrentTopicIndex:  1,
		Metadata:           model.CourseMetadata{LearningGoal: "Learn Go", Level: "beginner"},
	}
}

type serviceFixture struct {
	svc     *AssessmentService
	store   *fakeAssessmentStore
	courses *fakeCourseStore
	course  *model.Course
	learner uuid.UUID
	gen     *fakeGenerator
	grader  *fakeGrader
	sum     *stubSummarizer
}

func newFixture(t *testing.T, grader *fakeGrader) *serviceFixture {
	t.Helper()
	learner := uuid.New()
	course := testCourse(learner)
	store := newFakeAssessmentStore()
	courses := newFakeCourseStore(course)
	gen := &fakeGenerator{set: fourItemSet()}
	sum := &stubSummarizer{out: "Nice work on loops."}

	svc := NewAssessmentService(store, courses, gen, grader, sum,
		NewProgressionService(courses, zerolog.Nop()), zerolog.Nop())
	return &serviceFixture{svc: svc, store: store, courses: courses, course: course,
		learner: learner, gen: gen, grader: grader, sum: sum}
}

func createReq() model.CreateAssessmentRequest {
	return model.CreateAssessmentRequest{Topic: "Control flow"}
}

func TestCreateAssessment(t *testing.T) {
	f := newFixture(t, &fakeGrader{})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, model.AssessmentStatusInProgress, a.Status)
	assert.Equal(t, 4, a.TotalItems)
	assert.Equal(t, model.Concepts{"loops", "conditionals"}, a.Metadata.Concepts)
	assert.Equal(t, []string{"loops"}, a.Metadata.ItemConcepts["1"])

	// Course metadata now points at the new assessment.
	course, _ := f.courses.GetByID(context.Background(), f.course.ID)
	require.NotNil(t, course.Metadata.InProgressAssessmentID)
	assert.Equal(t, a.ID, *course.Metadata.InProgressAssessmentID)
	assert.Equal(t, "Control flow", course.Metadata.InProgressAssessmentTopic)
}

func TestCreateConflictReturnsExistingID(t *testing.T) {
	f := newFixture(t, &fakeGrader{})
	first, _, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	_, _, err = f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ExistingID)
	// Fast path: the second create never reached the store insert.
	assert.Equal(t, 1, f.store.createCalls)
}

func TestCreateRaceLosesToStoreConflict(t *testing.T) {
	f := newFixture(t, &fakeGrader{})

	// The winner's row exists but the fast-path lookup misses it once,
	// so the loser reaches the insert and hits the conflict target.
	winner := &model.Assessment{LearnerID: f.learner, CourseID: f.course.ID}
	require.NoError(t, f.store.CreateWithItems(context.Background(), winner, nil))
	f.store.hideFinds = 1

	_, _, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, winner.ID, conflict.ExistingID)
	assert.Equal(t, 2, f.store.createCalls)
}

func TestCreateGenerationFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, &fakeGrader{})
	f.gen.set = nil
	f.gen.err = itemwriter.ErrGenerationFailed

	_, _, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	assert.ErrorIs(t, err, itemwriter.ErrGenerationFailed)
	assert.Equal(t, 0, f.store.createCalls)
	assert.Empty(t, f.store.assessments)
}

func TestCreateOwnershipRejected(t *testing.T) {
	f := newFixture(t, &fakeGrader{})
	_, _, err := f.svc.Create(context.Background(), uuid.New(), f.course.ID, createReq())
	assert.ErrorIs(t, err, ErrNotOwner)
}

func submitAll(t *testing.T, f *serviceFixture, a *model.Assessment, items []model.AssessmentItem) (*SubmitResult, error) {
	t.Helper()
	answers := map[string]string{}
	for _, it := range items {
		answers[it.ID.String()] = "answer"
	}
	return f.svc.Submit(context.Background(), f.learner, a.ID, answers)
}

func TestSubmitFailedKeepsPointer(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 0}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	res, err := submitAll(t, f, a, items)
	require.NoError(t, err)
	assert.Equal(t, 75.0, res.OverallScore)
	assert.False(t, res.Passed)
	assert.Equal(t, 3, res.CorrectCount)
	assert.Equal(t, []string{"conditionals"}, res.FailedConcepts)
	assert.Equal(t, model.AssessmentStatusFailed, res.Assessment.Status)
	assert.Nil(t, res.Assessment.CompletedAt)

	course, _ := f.courses.GetByID(context.Background(), f.course.ID)
	assert.Equal(t, 0, course.CurrentLessonIndex)
	assert.Equal(t, 1, course.CurrentTopicIndex)
	assert.NotNil(t, course.Metadata.InProgressAssessmentID)
}

func TestResubmitFailedUntilPass(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 0}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	res, err := submitAll(t, f, a, items)
	require.NoError(t, err)
	require.False(t, res.Passed)

	f.grader.scores = []float64{1, 1, 1, 1}
	res, err = submitAll(t, f, a, items)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.OverallScore)
	assert.True(t, res.Passed)
	assert.Equal(t, model.AssessmentStatusCompleted, res.Assessment.Status)
	require.NotNil(t, res.Assessment.CompletedAt)

	// Pointer advanced past the lesson's last topic into the next lesson.
	course, _ := f.courses.GetByID(context.Background(), f.course.ID)
	assert.Equal(t, 1, course.CurrentLessonIndex)
	assert.Equal(t, 0, course.CurrentTopicIndex)
	assert.Nil(t, course.Metadata.InProgressAssessmentID)
	require.NotNil(t, course.Metadata.CompletedAssessmentID)
	assert.Equal(t, a.ID, *course.Metadata.CompletedAssessmentID)
}

func TestSubmitCompletedRejected(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 1}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	_, err = submitAll(t, f, a, items)
	require.NoError(t, err)

	_, err = submitAll(t, f, a, items)
	assert.ErrorIs(t, err, ErrAssessmentFinalized)
}

func TestSubmitPassBoundary(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		passed bool
	}{
		{"exactly 80", []float64{1, 1, 1, 0.2}, true},
		{"79.999", []float64{1, 1, 1, 0.19996}, false},
		{"just under 80", []float64{1, 1, 1, 0.19}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &fakeGrader{scores: tc.scores})
			a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
			require.NoError(t, err)

			res, err := submitAll(t, f, a, items)
			require.NoError(t, err)
			assert.Equal(t, tc.passed, res.Passed)
		})
	}
}

func TestSubmitReportsPersistFailures(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 1}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	f.store.failItemIDs = map[uuid.UUID]bool{items[2].ID: true}
	res, err := submitAll(t, f, a, items)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	require.Len(t, res.PersistFailures, 1)
	assert.Equal(t, items[2].ID, res.PersistFailures[0])
}

func TestSubmitUsesAutosavedAnswers(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 1}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	require.NoError(t, f.svc.RecordAnswer(context.Background(), f.learner, a.ID, items[0].ID, "saved"))

	// Submit without any answers; the autosaved one survives.
	res, err := f.svc.Submit(context.Background(), f.learner, a.ID, map[string]string{})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "saved", f.store.items[a.ID][0].UserAnswer)
}

func TestRecordAnswerIdempotent(t *testing.T) {
	f := newFixture(t, &fakeGrader{})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.RecordAnswer(context.Background(), f.learner, a.ID, items[0].ID, "same"))
	}
	assert.Equal(t, "same", f.store.items[a.ID][0].UserAnswer)

	require.NoError(t, f.svc.RecordAnswer(context.Background(), f.learner, a.ID, items[0].ID, "newer"))
	assert.Equal(t, "newer", f.store.items[a.ID][0].UserAnswer)
}

func TestRecordAnswerOnTerminalRejected(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 1}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	_, err = submitAll(t, f, a, items)
	require.NoError(t, err)

	err = f.svc.RecordAnswer(context.Background(), f.learner, a.ID, items[0].ID, "late")
	assert.ErrorIs(t, err, ErrAssessmentFinalized)
}

func TestGetHidesAnswersWhileInProgress(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{0, 0, 0, 0}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	_, got, err := f.svc.Get(context.Background(), f.learner, a.ID)
	require.NoError(t, err)
	for _, it := range got {
		assert.Empty(t, it.CorrectAnswer)
		assert.Nil(t, it.IsCorrect)
	}

	_, err = submitAll(t, f, a, items)
	require.NoError(t, err)

	_, got, err = f.svc.Get(context.Background(), f.learner, a.ID)
	require.NoError(t, err)
	for _, it := range got {
		assert.NotEmpty(t, it.CorrectAnswer)
		require.NotNil(t, it.IsCorrect)
		assert.False(t, *it.IsCorrect)
	}
}

func TestGetSummaryMemoized(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 1}})
	a, items, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	_, err = f.svc.GetSummary(context.Background(), f.learner, a.ID)
	assert.ErrorIs(t, err, ErrAssessmentInProgress)

	_, err = submitAll(t, f, a, items)
	require.NoError(t, err)

	s1, err := f.svc.GetSummary(context.Background(), f.learner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nice work on loops.", s1)
	assert.Equal(t, 1, f.sum.calls)

	s2, err := f.svc.GetSummary(context.Background(), f.learner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Equal(t, 1, f.sum.calls)
}

func TestSubmitOwnershipRejected(t *testing.T) {
	f := newFixture(t, &fakeGrader{scores: []float64{1, 1, 1, 1}})
	a, _, err := f.svc.Create(context.Background(), f.learner, f.course.ID, createReq())
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), uuid.New(), a.ID, nil)
	assert.ErrorIs(t, err, ErrNotOwner)
}
