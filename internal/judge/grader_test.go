package judge

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumistudy/lumi-backend/internal/model"
)

type stubClient struct {
	out string
	err error
}

func (s *stubClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	return s.out, s.err
}

func gradingItems() []Item {
	return []Item{
		{ID: "a", ItemOrder: 1, ItemType: model.ItemTypeShortAnswer, CorrectAnswer: "for", UserAnswer: "for", Concepts: []string{"loops"}},
		{ID: "b", ItemOrder: 2, ItemType: model.ItemTypeShortAnswer, CorrectAnswer: "if", UserAnswer: "while", Concepts: []string{"conditionals"}},
	}
}

func TestGradeUsesModelVerdicts(t *testing.T) {
	out := "```json\n" + `[
		{"item_id": "a", "score": 1.0, "error_type": ""},
		{"item_id": "b", "score": 0.5, "error_type": "incomplete"}
	]` + "\n```"

	g := New(&stubClient{out: out}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)
	require.Len(t, res.Evaluations, 2)
	assert.False(t, res.Degraded)

	assert.Equal(t, 1.0, res.Evaluations[0].Score)
	assert.True(t, res.Evaluations[0].IsCorrect)
	assert.Nil(t, res.Evaluations[0].ErrorType)

	assert.Equal(t, 0.5, res.Evaluations[1].Score)
	assert.True(t, res.Evaluations[1].IsCorrect)
	assert.Equal(t, "incomplete", *res.Evaluations[1].ErrorType)

	// 0.5 clears the correctness bar, so nothing failed.
	assert.Empty(t, res.FailedConcepts)
}

func TestGradePartialCreditKeepsConceptsOutOfFailed(t *testing.T) {
	out := `[
		{"item_id": "a", "score": 0.7, "error_type": "incomplete"},
		{"item_id": "b", "score": 0.2, "error_type": "misconception"}
	]`

	g := New(&stubClient{out: out}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)

	// Only the sub-0.5 item marks its concepts failed; the 0.7 item is
	// counted correct and must not pollute the list.
	assert.True(t, res.Evaluations[0].IsCorrect)
	assert.False(t, res.Evaluations[1].IsCorrect)
	assert.Equal(t, []string{"conditionals"}, res.FailedConcepts)
}

func TestGradeParsesEnvelope(t *testing.T) {
	out := "```json\n" + `{
		"evaluations": [
			{"item_id": "a", "score": 1.0, "error_type": ""},
			{"item_id": "b", "score": 0.3, "error_type": "misconception"}
		],
		"failed_concepts": ["conditionals", "syntax"]
	}` + "\n```"

	g := New(&stubClient{out: out}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)
	require.Len(t, res.Evaluations, 2)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1.0, res.Evaluations[0].Score)
	assert.Equal(t, 0.3, res.Evaluations[1].Score)

	// The judge's own failed_concepts list wins over local computation.
	assert.Equal(t, []string{"conditionals", "syntax"}, res.FailedConcepts)
}

func TestGradeEnvelopeWithoutFailedConceptsComputesLocally(t *testing.T) {
	out := `{
		"evaluations": [
			{"item_id": "a", "score": 1.0, "error_type": ""},
			{"item_id": "b", "score": 0.0, "error_type": "wrong"}
		]
	}`

	g := New(&stubClient{out: out}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)
	assert.Equal(t, []string{"conditionals"}, res.FailedConcepts)
}

func TestGradeClampsScores(t *testing.T) {
	out := `[
		{"item_id": "a", "score": 3.5, "error_type": ""},
		{"item_id": "b", "score": -1.0, "error_type": "wrong"}
	]`

	g := New(&stubClient{out: out}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Evaluations[0].Score)
	assert.Equal(t, 0.0, res.Evaluations[1].Score)
	assert.False(t, res.Evaluations[1].IsCorrect)
}

func TestGradeUnparsableOutputDegradesEverything(t *testing.T) {
	g := New(&stubClient{out: "I think the student did great overall!"}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)
	require.Len(t, res.Evaluations, 2)
	assert.True(t, res.Degraded)

	// Deterministic comparison: "for" matches, "while" does not.
	assert.Equal(t, 1.0, res.Evaluations[0].Score)
	assert.Equal(t, 0.0, res.Evaluations[1].Score)
	assert.Equal(t, []string{"conditionals"}, res.FailedConcepts)
}

func TestGradeClientErrorDegradesEverything(t *testing.T) {
	g := New(&stubClient{err: assert.AnError}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.Len(t, res.Evaluations, 2)
}

func TestGradeMissingEntryDegradesOnlyThatItem(t *testing.T) {
	out := `[{"item_id": "b", "score": 1.0, "error_type": ""}]`

	g := New(&stubClient{out: out}, zerolog.Nop())
	res, err := g.Grade(context.Background(), gradingItems())
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	// Item a had no entry and fell back; its answer matches the reference.
	assert.Equal(t, 1.0, res.Evaluations[0].Score)
	assert.Equal(t, 1.0, res.Evaluations[1].Score)
	assert.Empty(t, res.FailedConcepts)
}

func TestGradeEmptyItems(t *testing.T) {
	g := New(&stubClient{}, zerolog.Nop())
	res, err := g.Grade(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Evaluations)
}
