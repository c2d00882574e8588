// Package itemwriter wraps the generative model that writes assessment items.
// The model's output is free-form text expected to parse as a concept list
// plus an item list; everything about the response is validated or repaired
// before anything downstream trusts it.
package itemwriter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lumistudy/lumi-backend/internal/llm"
	"github.com/lumistudy/lumi-backend/internal/model"
)

// ErrGenerationFailed indicates the item writer's output could not be parsed
// into a usable item set. The orchestrator must not persist anything when
// generation fails.
var ErrGenerationFailed = errors.New("item generation failed")

// CurriculumContext is everything the item writer needs to target a topic.
type CurriculumContext struct {
	LearningGoal      string
	Domain            string
	Level             string
	CourseTitle       string
	CourseDescription string
	LessonTitle       string
	LessonDescription string
	Topic             string

	// Optional bookkeeping indices; echoed into assessment metadata.
	LessonIndex *int
	TopicIndex  *int
}

// GeneratedItem is one item as produced by the writer, after repair.
type GeneratedItem struct {
	ItemOrder     int            `json:"item_order"`
	ItemType      model.ItemType `json:"item_type"`
	QuestionText  string         `json:"question_text"`
	CorrectAnswer string         `json:"correct_answer"`
	Concepts      []string       `json:"concepts"`
	Level         string         `json:"level,omitempty"`
}

// GeneratedSet is the writer's validated output: the concept taxonomy this
// assessment covers and the items exercising it.
type GeneratedSet struct {
	Concepts []string        `json:"concepts"`
	Items    []GeneratedItem `json:"items"`
}

// Generator is the capability interface for item generation, so a
// deterministic stub can stand in for the model in tests.
type Generator interface {
	Generate(ctx context.Context, cc CurriculumContext) (*GeneratedSet, error)
}

// LLMGenerator implements Generator over an llm.Client.
type LLMGenerator struct {
	client llm.Client
	log    zerolog.Logger
}

// New creates an LLMGenerator.
func New(client llm.Client, log zerolog.Logger) *LLMGenerator {
	return &LLMGenerator{
		client: client,
		log:    log.With().Str("component", "item_writer").Logger(),
	}
}

// Generate produces a validated item set for the given curriculum context.
func (g *LLMGenerator) Generate(ctx context.Context, cc CurriculumContext) (*GeneratedSet, error) {
	raw, err := g.client.GenerateText(ctx, itemWriterSystemPrompt, buildItemWriterMessage(cc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	set, err := parseGeneratedSet(raw)
	if err != nil {
		g.log.Warn().Err(err).Str("topic", cc.Topic).Msg("Unparsable item writer output")
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	g.log.Info().
		Str("topic", cc.Topic).
		Int("items", len(set.Items)).
		Int("concepts", len(set.Concepts)).
		Msg("Items generated")
	return set, nil
}

// parseGeneratedSet parses raw writer output into a GeneratedSet, stripping
// code fences first and repairing what can be repaired:
//   - item_order values are reassigned 1..N whenever any are missing,
//     duplicated, or out of range
//   - unknown concept labels on items are dropped (items carry a subset of
//     the document-level concept list)
//   - unknown item types default to short_answer
func parseGeneratedSet(raw string) (*GeneratedSet, error) {
	var set GeneratedSet
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &set); err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}

	set.Concepts = cleanLabels(set.Concepts)
	if len(set.Concepts) == 0 {
		return nil, errors.New("no concepts in output")
	}
	if len(set.Items) == 0 {
		return nil, errors.New("no items in output")
	}

	known := make(map[string]bool, len(set.Concepts))
	for _, c := range set.Concepts {
		known[strings.ToLower(c)] = true
	}

	for i := range set.Items {
		item := &set.Items[i]
		item.QuestionText = strings.TrimSpace(item.QuestionText)
		item.CorrectAnswer = strings.TrimSpace(item.CorrectAnswer)
		if item.QuestionText == "" {
			return nil, fmt.Errorf("item %d has no question text", i+1)
		}
		if !model.KnownItemType(item.ItemType) {
			item.ItemType = model.ItemTypeShortAnswer
		}

		kept := item.Concepts[:0]
		for _, c := range cleanLabels(item.Concepts) {
			if known[strings.ToLower(c)] {
				kept = append(kept, c)
			}
		}
		item.Concepts = kept
	}

	if !ordersContiguous(set.Items) {
		for i := range set.Items {
			set.Items[i].ItemOrder = i + 1
		}
	}

	return &set, nil
}

// ordersContiguous reports whether the items already carry the contiguous
// 1..N ordering the store requires.
func ordersContiguous(items []GeneratedItem) bool {
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if it.ItemOrder < 1 || it.ItemOrder > len(items) || seen[it.ItemOrder] {
			return false
		}
		seen[it.ItemOrder] = true
	}
	return true
}

// cleanLabels trims labels and drops empties and duplicates, preserving order.
func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[strings.ToLower(l)] {
			continue
		}
		seen[strings.ToLower(l)] = true
		out = append(out, l)
	}
	return out
}
