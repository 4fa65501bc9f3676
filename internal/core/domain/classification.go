package domain

type QueryType string

const (
	QueryTypeStructured QueryType = "structured"
	QueryTypeSemantic   QueryType = "semantic"
	QueryTypeHybrid     QueryType = "hybrid"
	QueryTypeUnknown    QueryType = "unknown"
)

type ClassificationMethod string

const (
	MethodKeyword ClassificationMethod = "keyword"
	MethodLLM     ClassificationMethod = "llm"
)

type QueryClassification struct {
	QueryType   QueryType            `json:"query_type"`
	Method      ClassificationMethod `json:"method"`
	Confidence  string               `json:"confidence"`
	RequiresSQL bool                 `json:"requires_sql"`
	RequiresRAG bool                 `json:"requires_rag"`
	SQLMatches  int                  `json:"sql_matches"`
	RAGMatches  int                  `json:"rag_matches"`
}

// NewQueryClassification derives the routing flags from the query type.
func NewQueryClassification(queryType QueryType, method ClassificationMethod, confidence string) QueryClassification {
	return QueryClassification{
		QueryType:   queryType,
		Method:      method,
		Confidence:  confidence,
		RequiresSQL: queryType == QueryTypeStructured || queryType == QueryTypeHybrid,
		RequiresRAG: queryType == QueryTypeSemantic || queryType == QueryTypeHybrid,
	}
}

// SQLIntent is a loose description of what a structured question asks for.
type SQLIntent struct {
	Operation   string   `json:"operation"`
	Columns     []string `json:"columns"`
	Conditions  string   `json:"conditions,omitempty"`
	Aggregation string   `json:"aggregation,omitempty"`
}

// Vocabulary drives keyword classification and acronym expansion.
type Vocabulary struct {
	StructuredKeywords []string          `yaml:"structured_keywords"`
	SemanticKeywords   []string          `yaml:"semantic_keywords"`
	Acronyms           map[string]string `yaml:"acronyms"`
	StopWords          []string          `yaml:"stop_words"`
}
