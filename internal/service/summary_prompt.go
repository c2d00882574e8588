package service

import (
	"fmt"
	"strings"

	"github.com/lumistudy/lumi-backend/internal/model"
)

const summarySystemPrompt = `You are a supportive tutor writing a short performance summary for a learner who just finished an assessment.

Write 2-4 sentences in the second person. Name what went well and, if concepts were missed, which ones to review next. No headings, no lists, no JSON.`

func buildSummaryMessage(a *model.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", a.Metadata.Topic)
	if a.OverallScore != nil {
		fmt.Fprintf(&b, "Overall score: %.0f%%\n", *a.OverallScore)
	}
	fmt.Fprintf(&b, "Result: %s\n", a.Status)
	if len(a.Metadata.Concepts) > 0 {
		fmt.Fprintf(&b, "Concepts covered: %s\n", strings.Join(a.Metadata.Concepts, ", "))
	}
	if len(a.Metadata.FailedConcepts) > 0 {
		fmt.Fprintf(&b, "Concepts missed: %s\n", strings.Join(a.Metadata.FailedConcepts, ", "))
	} else {
		b.WriteString("Concepts missed: none\n")
	}
	if len(a.Metadata.EvaluationData) > 0 {
		fmt.Fprintf(&b, "Per-item evaluations: %s\n", string(a.Metadata.EvaluationData))
	}
	return b.String()
}
