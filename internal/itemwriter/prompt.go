package itemwriter

import (
	"fmt"
	"strings"
)

const itemWriterSystemPrompt = `You are an expert assessment designer for a personalized tutoring platform.

Given a course topic, produce a focused assessment that verifies the learner mastered it.

Rules:
1. First break the topic into 2-4 concrete sub-concepts a learner at the given level must master.
2. Write at least 3 items per sub-concept. Mix item types where sensible.
3. Allowed item types: "multiple_choice", "true_false", "short_answer", "coding_exercise", "fill_blank".
4. For multiple_choice, include the options inside question_text (labeled A, B, C, D) and put the correct option letter or its full text in correct_answer.
5. For true_false, correct_answer is "true" or "false".
6. Every item lists which of the sub-concepts it exercises in "concepts".
7. Items must be answerable from the lesson material alone.

Respond with ONLY valid JSON, no commentary, in exactly this shape:
{
  "concepts": ["sub-concept 1", "sub-concept 2"],
  "items": [
    {
      "item_order": 1,
      "item_type": "multiple_choice",
      "question_text": "...",
      "correct_answer": "...",
      "concepts": ["sub-concept 1"],
      "level": "beginner"
    }
  ]
}`

func buildItemWriterMessage(cc CurriculumContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Learning goal: %s\n", cc.LearningGoal)
	if cc.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", cc.Domain)
	}
	if cc.Level != "" {
		fmt.Fprintf(&b, "Learner level: %s\n", cc.Level)
	}
	fmt.Fprintf(&b, "Course: %s\n", cc.CourseTitle)
	if cc.CourseDescription != "" {
		fmt.Fprintf(&b, "Course description: %s\n", cc.CourseDescription)
	}
	if cc.LessonTitle != "" {
		fmt.Fprintf(&b, "Current lesson: %s\n", cc.LessonTitle)
	}
	if cc.LessonDescription != "" {
		fmt.Fprintf(&b, "Lesson description: %s\n", cc.LessonDescription)
	}
	fmt.Fprintf(&b, "\nWrite the assessment for this topic: %s\n", cc.Topic)
	return b.String()
}
