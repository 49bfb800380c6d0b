package evaluation

import (
	"regexp"
	"strings"
)

const (
	highlightOpen  = "<b>"
	highlightClose = "</b>"
)

// Highlight wraps every case-insensitive occurrence of any highlight in <b></b>. Highlights are
// matched literally; earlier entries win when two alternatives start at the same position.
func Highlight(text string, highlights []string) string {
	alternatives := make([]string, 0, len(highlights))
	for _, h := range highlights {
		if h == "" {
			continue
		}
		alternatives = append(alternatives, regexp.QuoteMeta(h))
	}
	if len(alternatives) == 0 {
		return text
	}

	pattern, err := regexp.Compile("(?i)(?:" + strings.Join(alternatives, "|") + ")")
	if err != nil {
		return text
	}

	return pattern.ReplaceAllStringFunc(text, func(match string) string {
		return highlightOpen + match + highlightClose
	})
}
