package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/ports"
)

const defaultAuxiliaryTimeout = 15 * time.Second

// QueryClassifier routes a question to the structured path, the semantic
// path or both. A keyword pass decides the clear cases; the model breaks ties.
type QueryClassifier struct {
	chat       ports.ChatModel
	structured []string
	semantic   []string
	timeout    time.Duration
}

func NewQueryClassifier(chat ports.ChatModel, vocabulary domain.Vocabulary, timeout time.Duration) *QueryClassifier {
	if timeout <= 0 {
		timeout = defaultAuxiliaryTimeout
	}
	return &QueryClassifier{
		chat:       chat,
		structured: lowerAll(vocabulary.StructuredKeywords),
		semantic:   lowerAll(vocabulary.SemanticKeywords),
		timeout:    timeout,
	}
}

func (c *QueryClassifier) Classify(ctx context.Context, query string, availableTables []string) domain.QueryClassification {
	sqlMatches, ragMatches := c.countMatches(query)

	if queryType, ok := keywordDecision(sqlMatches, ragMatches); ok {
		result := domain.NewQueryClassification(queryType, domain.MethodKeyword, "high")
		result.SQLMatches = sqlMatches
		result.RAGMatches = ragMatches
		return result
	}

	result := domain.NewQueryClassification(c.classifyWithModel(ctx, query, availableTables), domain.MethodLLM, "medium")
	result.SQLMatches = sqlMatches
	result.RAGMatches = ragMatches
	return result
}

func (c *QueryClassifier) countMatches(query string) (int, int) {
	lowered := strings.ToLower(query)
	sqlMatches := 0
	for _, keyword := range c.structured {
		if strings.Contains(lowered, keyword) {
			sqlMatches++
		}
	}
	ragMatches := 0
	for _, keyword := range c.semantic {
		if strings.Contains(lowered, keyword) {
			ragMatches++
		}
	}
	return sqlMatches, ragMatches
}

func keywordDecision(sqlMatches, ragMatches int) (domain.QueryType, bool) {
	switch {
	case sqlMatches >= 2 && ragMatches == 0:
		return domain.QueryTypeStructured, true
	case ragMatches >= 2 && sqlMatches == 0:
		return domain.QueryTypeSemantic, true
	case sqlMatches >= 1 && ragMatches >= 1:
		return domain.QueryTypeHybrid, true
	default:
		return "", false
	}
}

func (c *QueryClassifier) classifyWithModel(ctx context.Context, query string, availableTables []string) domain.QueryType {
	if c.chat == nil {
		return domain.QueryTypeSemantic
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.chat.Complete(callCtx, buildClassificationPrompt(query, availableTables), domain.CompletionOptions{Temperature: 0, MaxTokens: 20})
	if err != nil {
		slog.Warn("query_classification_failed", "error", err)
		return domain.QueryTypeSemantic
	}
	return parseClassificationReply(reply)
}

func parseClassificationReply(reply string) domain.QueryType {
	upper := strings.ToUpper(strings.TrimSpace(reply))
	switch {
	case strings.Contains(upper, "STRUCTURED_SQL"):
		return domain.QueryTypeStructured
	case strings.Contains(upper, "SEMANTIC_RAG"):
		return domain.QueryTypeSemantic
	case strings.Contains(upper, "HYBRID"):
		return domain.QueryTypeHybrid
	default:
		slog.Warn("unexpected_classification_reply", "reply", upper)
		return domain.QueryTypeSemantic
	}
}

func buildClassificationPrompt(query string, availableTables []string) string {
	tables := "None"
	if len(availableTables) > 0 {
		tables = strings.Join(availableTables, ", ")
	}
	return fmt.Sprintf(`You are a query classifier. Classify the user query into one of three categories:

1. STRUCTURED_SQL: filtering, aggregation, counting or statistics over structured data (CSV tables)
   Examples: "How many providers are there?", "Show me all fees above 1000", "List providers in NSW"

2. SEMANTIC_RAG: conceptual information, explanations, procedures or guidance from documents
   Examples: "How to add a lead?", "What is the application process?", "Explain CRM features"

3. HYBRID: both structured data and conceptual information
   Examples: "Show me all providers and explain how to contact them", "List high fees and why they are set"

Available SQL Tables: %s

User Query: %q

Classification (respond with ONLY one word: STRUCTURED_SQL, SEMANTIC_RAG, or HYBRID):`, tables, query)
}

// ExtractSQLIntent asks the model to describe the operation a structured
// question needs. Failures yield an UNKNOWN intent.
func (c *QueryClassifier) ExtractSQLIntent(ctx context.Context, query string) domain.SQLIntent {
	intent := domain.SQLIntent{Operation: "UNKNOWN", Columns: []string{}}
	if c.chat == nil {
		return intent
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Analyze this query and extract SQL intent:

Query: %q

Extract:
1. Operation type (SELECT, COUNT, AGGREGATE, FILTER, etc.)
2. Target columns (if mentioned)
3. Conditions (if any)
4. Aggregation type (if any)

Respond in this format:
Operation: <operation>
Columns: <comma-separated columns or "UNKNOWN">
Conditions: <conditions or "NONE">
Aggregation: <aggregation type or "NONE">`, query)

	reply, err := c.chat.Complete(callCtx, prompt, domain.CompletionOptions{Temperature: 0, MaxTokens: 150})
	if err != nil {
		slog.Warn("sql_intent_extraction_failed", "error", err)
		return intent
	}
	return parseSQLIntent(reply)
}

func parseSQLIntent(reply string) domain.SQLIntent {
	intent := domain.SQLIntent{Operation: "UNKNOWN", Columns: []string{}}
	for _, line := range strings.Split(reply, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Operation":
			intent.Operation = value
		case "Columns":
			if strings.EqualFold(value, "UNKNOWN") {
				continue
			}
			for _, column := range strings.Split(value, ",") {
				if column = strings.TrimSpace(column); column != "" {
					intent.Columns = append(intent.Columns, column)
				}
			}
		case "Conditions":
			if !strings.EqualFold(value, "NONE") {
				intent.Conditions = value
			}
		case "Aggregation":
			if !strings.EqualFold(value, "NONE") {
				intent.Aggregation = value
			}
		}
	}
	return intent
}

// SuggestTable picks the table most relevant to the query.
func (c *QueryClassifier) SuggestTable(ctx context.Context, query string, availableTables []string) string {
	switch len(availableTables) {
	case 0:
		return ""
	case 1:
		return availableTables[0]
	}
	if c.chat == nil {
		return availableTables[0]
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Given the user query and available tables, suggest the most relevant table.

Query: %q

Available Tables: %s

Respond with ONLY the table name (choose one):`, query, strings.Join(availableTables, ", "))

	reply, err := c.chat.Complete(callCtx, prompt, domain.CompletionOptions{Temperature: 0, MaxTokens: 20})
	if err != nil {
		slog.Warn("table_suggestion_failed", "error", err)
		return availableTables[0]
	}
	suggested := strings.ToLower(strings.TrimSpace(reply))
	if suggested != "" {
		for _, table := range availableTables {
			lowered := strings.ToLower(table)
			if strings.Contains(suggested, lowered) || strings.Contains(lowered, suggested) {
				return table
			}
		}
	}
	return availableTables[0]
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
