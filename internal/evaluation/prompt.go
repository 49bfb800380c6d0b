package evaluation

import "strings"

const essayPlaceholder = "{{essay}}"

const promptTemplate = `You are an experienced English teacher reviewing a short student essay.
Grade the essay on a scale from 0 to 10 considering structure, clarity, grammar and argument quality.

Respond with a single JSON object and nothing else:
{"score": <number 0-10>, "feedback": "<constructive feedback for the student>", "highlights": ["<exact phrase copied from the essay>", ...]}

Highlights must be short phrases copied verbatim from the essay that illustrate your feedback.

Essay:
"""
{{essay}}
"""`

// BuildPrompt renders the grading instruction for one essay.
func BuildPrompt(essay string) string {
	return strings.Replace(promptTemplate, essayPlaceholder, strings.TrimSpace(essay), 1)
}
