package domain

// EnhancedQuery holds every rewrite of a question. Variations always start
// with the original; ContextAware equals the original when no context was given.
type EnhancedQuery struct {
	Original     string   `json:"original"`
	Expanded     string   `json:"expanded"`
	Keywords     []string `json:"keywords"`
	Variations   []string `json:"variations"`
	ContextAware string   `json:"context_aware"`
	Total        int      `json:"total_variations"`
}
