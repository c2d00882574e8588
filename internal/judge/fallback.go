package judge

import (
	"strings"

	"github.com/lumistudy/lumi-backend/internal/model"
)

// fallbackEvaluate grades one item without the model: normalized string
// comparison against the reference answer. Scores are always 0 or 1.
func fallbackEvaluate(item Item) Evaluation {
	correct := deterministicCorrect(item)

	ev := Evaluation{
		ItemID:    item.ID,
		IsCorrect: correct,
		Concepts:  item.Concepts,
	}
	if correct {
		ev.Score = 1
	} else {
		et := "incorrect"
		if strings.TrimSpace(item.UserAnswer) == "" {
			et = "no_answer"
		}
		ev.ErrorType = &et
	}
	return ev
}

func deterministicCorrect(item Item) bool {
	user := normalizeAnswer(item.UserAnswer)
	ref := normalizeAnswer(item.CorrectAnswer)
	if user == "" {
		return false
	}
	if user == ref {
		return true
	}

	switch item.ItemType {
	case model.ItemTypeTrueFalse:
		return boolSpelling(user) != "" && boolSpelling(user) == boolSpelling(ref)
	case model.ItemTypeMultipleChoice:
		return choiceMatches(item.QuestionText, user, ref)
	}
	return false
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// boolSpelling canonicalizes common true/false spellings, returning "" for
// anything unrecognized.
func boolSpelling(s string) string {
	switch s {
	case "true", "t", "yes", "y":
		return "true"
	case "false", "f", "no", "n":
		return "false"
	}
	return ""
}

// choiceMatches accepts either the option letter or the option's full text
// for multiple choice items. Options are read from the question text, one
// per line in the form "A. option text".
func choiceMatches(questionText, user, ref string) bool {
	options := parseOptions(questionText)
	if len(options) == 0 {
		return false
	}

	refText, refOK := options[strings.TrimSuffix(ref, ".")]
	if !refOK {
		// Reference holds the option text; find its letter.
		for letter, text := range options {
			if text == ref {
				refText = text
				ref = letter
				refOK = true
				break
			}
		}
	}
	if !refOK {
		return false
	}

	user = strings.TrimSuffix(user, ".")
	return user == ref || user == refText
}

// parseOptions extracts "A. text" style option lines, keyed by the
// lowercased letter.
func parseOptions(questionText string) map[string]string {
	options := map[string]string{}
	for _, line := range strings.Split(questionText, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 {
			continue
		}
		letter := line[0]
		if (letter < 'A' || letter > 'Z') && (letter < 'a' || letter > 'z') {
			continue
		}
		if line[1] != '.' && line[1] != ')' {
			continue
		}
		text := normalizeAnswer(line[2:])
		if text == "" {
			continue
		}
		options[strings.ToLower(string(letter))] = text
	}
	return options
}
