package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// Text strips markup and surrounding whitespace from a plain-text field such as
// a title, a name or a reminder. Input without angle brackets is only trimmed,
// so ampersands and quotes are stored as typed.
func Text(input string) string {
	trimmed := strings.TrimSpace(input)
	if !strings.ContainsAny(trimmed, "<>") {
		return trimmed
	}
	return strings.TrimSpace(StrictPolicy.Sanitize(trimmed))
}

// TextSlice applies Text to each element and drops the ones left empty.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	sanitized := make([]string, 0, len(inputs))
	for _, input := range inputs {
		if clean := Text(input); clean != "" {
			sanitized = append(sanitized, clean)
		}
	}
	return sanitized
}
