package analyze

import (
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedResponse marks a reply that cannot be used as an insight.
var ErrMalformedResponse = errors.New("malformed llm response")

const minResponseLen = 3

var codeBlockRe = regexp.MustCompile("(?s)^```(?:markdown|md)?\\s*(.*?)\\s*```$")

// ValidateResponse normalizes a model reply. Blank or near-blank replies are
// reported as ErrMalformedResponse.
func ValidateResponse(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	if len(s) < minResponseLen {
		return "", ErrMalformedResponse
	}
	return s, nil
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|` +
		`new\s+instructions)`,
)

// LooksLikeInjection reports whether post text reads like instructions aimed
// at the model rather than at other forum users.
func LooksLikeInjection(text string) bool {
	return injectionPattern.MatchString(text)
}
