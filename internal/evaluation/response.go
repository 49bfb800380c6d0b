package evaluation

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-review-api/internal/pipeline"
)

// Failure messages surfaced to callers. They never include parser internals.
const (
	MsgResponseParsingFailed = "Response parsing failed"
	MsgInvalidResponseFormat = "Invalid response format"
)

const (
	MinScore = 0
	MaxScore = 10
)

// Response is a validated AI evaluation.
type Response struct {
	Score      int      `json:"score"`
	Feedback   string   `json:"feedback"`
	Highlights []string `json:"highlights"`
}

const responseSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["score", "feedback", "highlights"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 10},
    "feedback": {"type": "string"},
    "highlights": {"type": "array"}
  }
}`

var (
	responseSchema = jsonschema.MustCompileString("evaluation_response.schema.json", responseSchemaSource)
	fencePattern   = regexp.MustCompile("(?s)^```[A-Za-z0-9_+-]*\\s*(.*?)\\s*```$")
)

// StripFence removes a surrounding markdown code fence (with optional language tag) and trims
// whitespace. Text without a fence is only trimmed.
func StripFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if match := fencePattern.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimSpace(match[1])
	}
	return trimmed
}

// ValidateResponse turns raw model output into a validated Response.
func ValidateResponse(raw string) pipeline.Result[Response] {
	body := StripFence(raw)
	if body == "" {
		return pipeline.Fail[Response](MsgResponseParsingFailed)
	}

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return pipeline.Fail[Response](MsgResponseParsingFailed)
	}

	if err := responseSchema.Validate(decoded); err != nil {
		return pipeline.Fail[Response](MsgInvalidResponseFormat)
	}

	payload, ok := decoded.(map[string]any)
	if !ok {
		return pipeline.Fail[Response](MsgInvalidResponseFormat)
	}

	score, ok := payload["score"].(float64)
	if !ok || math.IsNaN(score) || score < MinScore || score > MaxScore {
		return pipeline.Fail[Response](MsgInvalidResponseFormat)
	}

	feedback, ok := payload["feedback"].(string)
	feedback = strings.TrimSpace(feedback)
	if !ok || feedback == "" {
		return pipeline.Fail[Response](MsgInvalidResponseFormat)
	}

	items, ok := payload["highlights"].([]any)
	if !ok {
		return pipeline.Fail[Response](MsgInvalidResponseFormat)
	}

	return pipeline.Ok(Response{
		Score:      RoundScore(score),
		Feedback:   feedback,
		Highlights: filterHighlights(items),
	})
}

// RoundScore rounds half up.
func RoundScore(score float64) int {
	return int(math.Floor(score + 0.5))
}

func filterHighlights(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}
