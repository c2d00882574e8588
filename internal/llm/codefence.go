package llm

import "strings"

// StripCodeFences removes a leading/trailing markdown code fence from a model
// response, including any language tag on the opening fence. Responses without
// fences are returned trimmed and otherwise untouched.
func StripCodeFences(src string) string {
	s := strings.TrimSpace(src)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	body := lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		body = lines[1 : len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}
