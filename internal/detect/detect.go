// Package detect classifies model identifiers into provider families and
// versions using plain substring rules.
//
// The keyword sets are loose: deployment aliases such as "my-sonnet-prod" or
// "clau-v2" route to Claude, and so does any other name containing "sonne".
package detect

import (
	"regexp"
	"strings"
)

var claudeKeywords = []string{"claude", "clau", "claud", "sonnet", "sonne", "sonn"}

var geminiKeywords = []string{"gemini", "gemini-1.5", "gemini-2.5", "gemini-pro", "gemini-flash"}

// converse-generation version markers
var newClaudeMarkers = []string{"3.7", "4", "4.5"}

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}

	return false
}

// IsClaudeModel reports whether model looks like a Claude deployment.
func IsClaudeModel(model string) bool {
	return containsAny(strings.ToLower(model), claudeKeywords)
}

// IsGeminiModel reports whether model looks like a Gemini deployment.
func IsGeminiModel(model string) bool {
	return containsAny(strings.ToLower(model), geminiKeywords)
}

// IsClaude37Or4 reports whether a Claude model uses the converse payload
// generation (3.7, 4, 4.5 and anything newer). Claude names without an
// explicit "3.5" are assumed to be new. Non-Claude names are never new-Claude,
// even when they contain a "4" (gpt-4o).
//
// The "4" marker is a plain substring, so date-stamped 3.5 identifiers such as
// "claude-3.5-sonnet-20241022" also report true.
func IsClaude37Or4(model string) bool {
	if !IsClaudeModel(model) {
		return false
	}
	if containsAny(model, newClaudeMarkers) {
		return true
	}

	return !strings.Contains(model, "3.5")
}

// ModelVersion returns the first integer, optionally followed by a dotted
// fraction, found in model. ok is false when model has no digits.
func ModelVersion(model string) (version string, ok bool) {
	v := versionPattern.FindString(model)
	if v == "" {
		return "", false
	}

	return v, true
}
