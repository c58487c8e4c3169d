package chunker

import "strings"

// EstimateTokens gives a rough token count at ~1.33 tokens per word.
// Exact tokenization is not needed to keep requests under a budget.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := int(float64(len(strings.Fields(text))) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
