package domain

import "strings"

// EstimateTokenCount approximates a token count by counting words. It is
// used for usage reporting only and is never exact.
func EstimateTokenCount(text string) int {
	return len(strings.Fields(text))
}
