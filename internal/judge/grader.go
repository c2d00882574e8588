// Package judge grades submitted answers. A generative model is asked for
// per-item evaluations against a partial-credit rubric; whenever its output
// is missing or unusable for an item, a deterministic string comparison
// steps in so grading always completes.
package judge

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lumistudy/lumi-backend/internal/llm"
	"github.com/lumistudy/lumi-backend/internal/model"
)

// Item is one assessment item as presented to the judge.
type Item struct {
	ID            string
	ItemOrder     int
	ItemType      model.ItemType
	QuestionText  string
	CorrectAnswer string
	UserAnswer    string
	Concepts      []string
}

// Evaluation is the judge's verdict on one item. Score is in [0, 1].
type Evaluation struct {
	ItemID    string   `json:"item_id"`
	Score     float64  `json:"score"`
	IsCorrect bool     `json:"is_correct"`
	ErrorType *string  `json:"error_type,omitempty"`
	Concepts  []string `json:"concepts,omitempty"`
}

// Result is the full grading outcome. Evaluations holds exactly one entry
// per input item, in input order. Degraded is set when any item fell back
// to deterministic comparison.
type Result struct {
	Evaluations    []Evaluation
	FailedConcepts []string
	Degraded       bool
}

// Grader is the capability interface for grading a submission.
type Grader interface {
	Grade(ctx context.Context, items []Item) (*Result, error)
}

// LLMGrader implements Grader over an llm.Client.
type LLMGrader struct {
	client llm.Client
	log    zerolog.Logger
}

// New creates an LLMGrader.
func New(client llm.Client, log zerolog.Logger) *LLMGrader {
	return &LLMGrader{
		client: client,
		log:    log.With().Str("component", "judge").Logger(),
	}
}

// modelEvaluation is one entry as the model emits it, before matching.
type modelEvaluation struct {
	ItemID    string   `json:"item_id"`
	Score     float64  `json:"score"`
	ErrorType string   `json:"error_type"`
	Concepts  []string `json:"concepts"`
}

// judgeEnvelope is the documented judge response shape. Models sometimes
// emit the bare evaluations array instead; both parse.
type judgeEnvelope struct {
	Evaluations    []modelEvaluation `json:"evaluations"`
	FailedConcepts []string          `json:"failed_concepts"`
}

// parseJudgeOutput parses raw judge output after fence stripping: the object
// envelope first, then a bare evaluations array. The returned bool reports
// whether the output carried its own failed_concepts list.
func parseJudgeOutput(raw string) ([]modelEvaluation, []string, bool, error) {
	stripped := llm.StripCodeFences(raw)

	var env judgeEnvelope
	if err := json.Unmarshal([]byte(stripped), &env); err == nil && len(env.Evaluations) > 0 {
		return env.Evaluations, env.FailedConcepts, env.FailedConcepts != nil, nil
	}

	var entries []modelEvaluation
	if err := json.Unmarshal([]byte(stripped), &entries); err != nil {
		return nil, nil, false, err
	}
	return entries, nil, false, nil
}

// Grade evaluates every item. It never returns an error for bad model
// output; unusable entries degrade to deterministic grading per item.
func (g *LLMGrader) Grade(ctx context.Context, items []Item) (*Result, error) {
	if len(items) == 0 {
		return &Result{Evaluations: []Evaluation{}}, nil
	}

	var (
		entries      []modelEvaluation
		docFailed    []string
		hasDocFailed bool
	)
	degradedAll := false

	raw, err := g.client.GenerateText(ctx, judgeSystemPrompt, buildJudgeMessage(items))
	if err != nil {
		g.log.Warn().Err(err).Msg("Judge call failed, falling back to deterministic grading")
		degradedAll = true
	} else if entries, docFailed, hasDocFailed, err = parseJudgeOutput(raw); err != nil {
		g.log.Warn().Err(err).Msg("Unparsable judge output, falling back to deterministic grading")
		degradedAll = true
	}

	res := &Result{Evaluations: make([]Evaluation, 0, len(items))}
	matched := matchEntries(items, entries)

	for i, item := range items {
		var ev Evaluation
		if degradedAll || matched[i] == nil {
			ev = fallbackEvaluate(item)
			res.Degraded = true
		} else {
			ev = finalizeEvaluation(item, *matched[i])
		}
		res.Evaluations = append(res.Evaluations, ev)
	}

	if hasDocFailed {
		res.FailedConcepts = docFailed
	} else {
		res.FailedConcepts = collectFailedConcepts(items, res.Evaluations)
	}
	return res, nil
}

// finalizeEvaluation normalizes one matched model entry: the score is
// clamped to [0, 1], is_correct derives from the clamped score, and
// error_type is present exactly when the item lost points.
func finalizeEvaluation(item Item, entry modelEvaluation) Evaluation {
	score := entry.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	ev := Evaluation{
		ItemID:    item.ID,
		Score:     score,
		IsCorrect: score >= 0.5,
		Concepts:  item.Concepts,
	}
	if score < 1 {
		et := strings.TrimSpace(entry.ErrorType)
		if et == "" {
			et = "incorrect"
		}
		ev.ErrorType = &et
	}
	return ev
}

// collectFailedConcepts unions the concepts of every item graded below 0.5,
// sorted for stable output. Partial credit at or above 0.5 counts as
// understood; only genuinely missed items mark their concepts failed.
func collectFailedConcepts(items []Item, evals []Evaluation) []string {
	seen := map[string]bool{}
	for i, ev := range evals {
		if ev.Score >= 0.5 {
			continue
		}
		for _, c := range items[i].Concepts {
			seen[c] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
