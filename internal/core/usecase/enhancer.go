package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

const (
	defaultMaxVariations = 3
	maxKeywords          = 5
	contextWindowChars   = 500
	tokenPunctuation     = ".,!?;:"
	variationMarkers     = "123456789.-) "
	rewriteMarkers       = "123.-) "
)

var subQuestionSeparator = regexp.MustCompile(`\?|\band\b|\bor\b`)

// QueryEnhancer rewrites a question into the forms retrieval works best
// with. Model failures never escape; each step falls back to the input.
type QueryEnhancer struct {
	chat          ports.ChatModel
	acronyms      map[string]string
	stopWords     map[string]struct{}
	maxVariations int
	timeout       time.Duration
}

func NewQueryEnhancer(chat ports.ChatModel, vocabulary domain.Vocabulary, maxVariations int, timeout time.Duration) *QueryEnhancer {
	if maxVariations <= 0 {
		maxVariations = defaultMaxVariations
	}
	if timeout <= 0 {
		timeout = defaultAuxiliaryTimeout
	}
	acronyms := make(map[string]string, len(vocabulary.Acronyms))
	for acronym, full := range vocabulary.Acronyms {
		acronyms[strings.ToUpper(acronym)] = full
	}
	stopWords := make(map[string]struct{}, len(vocabulary.StopWords))
	for _, word := range vocabulary.StopWords {
		stopWords[strings.ToLower(word)] = struct{}{}
	}
	return &QueryEnhancer{
		chat:          chat,
		acronyms:      acronyms,
		stopWords:     stopWords,
		maxVariations: maxVariations,
		timeout:       timeout,
	}
}

func (e *QueryEnhancer) Enhance(ctx context.Context, query, conversationContext string) domain.EnhancedQuery {
	variations := e.GenerateVariations(ctx, query, e.maxVariations)

	contextAware := query
	if strings.TrimSpace(conversationContext) != "" {
		contextAware = e.contextAwareQuery(ctx, query, conversationContext)
		if !containsString(variations, contextAware) {
			variations = append(variations, contextAware)
		}
	}

	return domain.EnhancedQuery{
		Original:     query,
		Expanded:     e.ExpandAcronyms(query),
		Keywords:     e.ExtractKeywords(query),
		Variations:   variations,
		ContextAware: contextAware,
		Total:        len(variations),
	}
}

// ExpandAcronyms rewrites known acronyms as "TOKEN (Full Form)".
func (e *QueryEnhancer) ExpandAcronyms(query string) string {
	words := strings.Fields(query)
	for i, word := range words {
		clean := strings.Trim(word, tokenPunctuation)
		if full, ok := e.acronyms[strings.ToUpper(clean)]; ok {
			words[i] = fmt.Sprintf("%s (%s)", clean, full)
		}
	}
	return strings.Join(words, " ")
}

// ExtractKeywords returns up to five distinct non-stop-words, longest first.
func (e *QueryEnhancer) ExtractKeywords(query string) []string {
	words := make([]string, 0)
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if _, stop := e.stopWords[word]; !stop {
			words = append(words, word)
		}
	}
	if len(words) == 0 {
		words = strings.Fields(query)
	}
	for i, word := range words {
		words[i] = strings.Trim(word, tokenPunctuation)
	}
	sort.SliceStable(words, func(i, j int) bool {
		return utf8.RuneCountInString(words[i]) > utf8.RuneCountInString(words[j])
	})

	keywords := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		key := strings.ToLower(word)
		if _, ok := seen[key]; ok || utf8.RuneCountInString(word) <= 2 {
			continue
		}
		seen[key] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) >= maxKeywords {
			break
		}
	}
	return keywords
}

// GenerateVariations returns the query followed by up to n model phrasings.
func (e *QueryEnhancer) GenerateVariations(ctx context.Context, query string, n int) []string {
	if n <= 0 {
		n = e.maxVariations
	}
	prompt := fmt.Sprintf(`Generate %d alternative phrasings of the following query.
Each variation should:
- Capture the same intent
- Use different wording or perspective
- Be concise and clear
- Focus on the core question

Original Query: %q

Generate %d variations (one per line, no numbering):`, n, query, n)

	reply, err := e.complete(ctx, prompt, 0.7)
	if err != nil {
		slog.Warn("query_variation_failed", "error", err)
		return []string{query}
	}

	out := []string{query}
	taken := 0
	for _, line := range strings.Split(reply, "\n") {
		if taken == n {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		taken++
		line = strings.TrimLeft(line, variationMarkers)
		if line != "" && line != query {
			out = append(out, line)
		}
	}
	return out
}

func (e *QueryEnhancer) contextAwareQuery(ctx context.Context, query, conversationContext string) string {
	prompt := fmt.Sprintf(`Given the conversation context and current query, generate a standalone version of the query that incorporates relevant context.

Conversation Context:
%s

Current Query: %q

Standalone Query (one line):`, lastRunes(conversationContext, contextWindowChars), query)

	reply, err := e.complete(ctx, prompt, 0.3)
	if err != nil {
		slog.Warn("context_rewrite_failed", "error", err)
		return query
	}
	rewritten := strings.TrimLeft(strings.TrimSpace(reply), rewriteMarkers)
	if rewritten == "" {
		return query
	}
	return rewritten
}

// OptimizeForSQL rephrases the query around entities, attributes and conditions.
func (e *QueryEnhancer) OptimizeForSQL(ctx context.Context, query string, tables []string) string {
	tableLine := ""
	if len(tables) > 0 {
		tableLine = "\nAvailable tables: " + strings.Join(tables, ", ") + "\n"
	}
	prompt := fmt.Sprintf(`Convert this natural language query into a more SQL-friendly format while preserving intent.
Focus on entities, attributes, and conditions.
%s
Query: %q

SQL-friendly version (one line):`, tableLine, query)

	reply, err := e.complete(ctx, prompt, 0.2)
	if err != nil {
		slog.Warn("sql_optimization_failed", "error", err)
		return query
	}
	if optimized := strings.TrimSpace(reply); optimized != "" {
		return optimized
	}
	return query
}

// OptimizeForSemantic rephrases the query conceptually. It falls back to
// the acronym-expanded query.
func (e *QueryEnhancer) OptimizeForSemantic(ctx context.Context, query string) string {
	expanded := e.ExpandAcronyms(query)
	prompt := fmt.Sprintf(`Rephrase this query to be more conceptual and descriptive for semantic search.
Focus on the underlying concept and intent.

Query: %q

Semantic version (one line):`, query)

	reply, err := e.complete(ctx, prompt, 0.3)
	if err != nil {
		slog.Warn("semantic_optimization_failed", "error", err)
		return expanded
	}
	if optimized := strings.TrimSpace(reply); optimized != "" {
		return optimized
	}
	return expanded
}

// Decompose splits a multi-part question into its parts.
func Decompose(query string) []string {
	if !strings.Contains(query, "?") {
		return []string{query}
	}
	parts := make([]string, 0)
	for _, part := range subQuestionSeparator.Split(query, -1) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) <= 1 {
		return []string{query}
	}
	return parts
}

func (e *QueryEnhancer) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if e.chat == nil {
		return "", fmt.Errorf("no chat model configured")
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.chat.Complete(callCtx, prompt, domain.CompletionOptions{Temperature: temperature, MaxTokens: 300})
}

func lastRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
