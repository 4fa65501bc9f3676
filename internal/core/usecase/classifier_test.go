package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

func TestClassifyKeywordTier(t *testing.T) {
	chat := &scriptedChat{err: errors.New("must not be called")}
	classifier := NewQueryClassifier(chat, domain.DefaultVocabulary(), 0)

	cases := []struct {
		query       string
		want        domain.QueryType
		requiresSQL bool
		requiresRAG bool
	}{
		{"How many courses are there and what are their fees?", domain.QueryTypeStructured, true, false},
		{"Explain the application process steps", domain.QueryTypeSemantic, false, true},
		{"What is the fee for nursing?", domain.QueryTypeHybrid, true, true},
	}
	for _, tc := range cases {
		got := classifier.Classify(context.Background(), tc.query, nil)
		if got.QueryType != tc.want {
			t.Fatalf("%q: type = %s, want %s (sql=%d rag=%d)", tc.query, got.QueryType, tc.want, got.SQLMatches, got.RAGMatches)
		}
		if got.Method != domain.MethodKeyword || got.Confidence != "high" {
			t.Fatalf("%q: expected keyword/high, got %s/%s", tc.query, got.Method, got.Confidence)
		}
		if got.RequiresSQL != tc.requiresSQL || got.RequiresRAG != tc.requiresRAG {
			t.Fatalf("%q: unexpected routing flags %+v", tc.query, got)
		}
	}
	if chat.promptCount() != 0 {
		t.Fatalf("keyword tier should not call the model")
	}
}

func TestClassifyFallsBackToModel(t *testing.T) {
	chat := &scriptedChat{replies: []string{"  hybrid\n"}}
	classifier := NewQueryClassifier(chat, domain.DefaultVocabulary(), 0)

	got := classifier.Classify(context.Background(), "How do I add a lead in the CRM?", []string{"table_providers"})
	if got.QueryType != domain.QueryTypeHybrid || got.Method != domain.MethodLLM || got.Confidence != "medium" {
		t.Fatalf("unexpected classification: %+v", got)
	}
	if got.RAGMatches != 1 || got.SQLMatches != 0 {
		t.Fatalf("unexpected match counts: %+v", got)
	}
	if !strings.Contains(chat.prompts[0], "Available SQL Tables: table_providers") {
		t.Fatalf("prompt should list tables: %s", chat.prompts[0])
	}
}

func TestClassifyModelFailureDefaultsToSemantic(t *testing.T) {
	for name, chat := range map[string]*scriptedChat{
		"error":   {err: errors.New("model offline")},
		"garbage": {replies: []string{"I think it is a database thing"}},
	} {
		classifier := NewQueryClassifier(chat, domain.DefaultVocabulary(), 0)
		got := classifier.Classify(context.Background(), "How do I add a lead in the CRM?", nil)
		if got.QueryType != domain.QueryTypeSemantic || got.Method != domain.MethodLLM {
			t.Fatalf("%s: expected semantic via llm, got %+v", name, got)
		}
		if got.RequiresSQL || !got.RequiresRAG {
			t.Fatalf("%s: unexpected routing flags %+v", name, got)
		}
	}
}

func TestClassifyUsesVocabularyOverride(t *testing.T) {
	vocabulary := domain.DefaultVocabulary().Merge(domain.Vocabulary{
		StructuredKeywords: []string{"intake", "campus"},
	})
	classifier := NewQueryClassifier(nil, vocabulary, 0)

	got := classifier.Classify(context.Background(), "Which campus has a February intake", nil)
	if got.QueryType != domain.QueryTypeStructured || got.Method != domain.MethodKeyword {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestExtractSQLIntent(t *testing.T) {
	chat := &scriptedChat{replies: []string{"Operation: COUNT\nColumns: provider_name, state\nConditions: state = 'NSW'\nAggregation: NONE"}}
	classifier := NewQueryClassifier(chat, domain.DefaultVocabulary(), 0)

	intent := classifier.ExtractSQLIntent(context.Background(), "How many providers in NSW?")
	if intent.Operation != "COUNT" || len(intent.Columns) != 2 || intent.Columns[1] != "state" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.Conditions != "state = 'NSW'" || intent.Aggregation != "" {
		t.Fatalf("unexpected conditions/aggregation: %+v", intent)
	}

	failing := NewQueryClassifier(&scriptedChat{err: errors.New("down")}, domain.DefaultVocabulary(), 0)
	if intent := failing.ExtractSQLIntent(context.Background(), "x"); intent.Operation != "UNKNOWN" || len(intent.Columns) != 0 {
		t.Fatalf("expected unknown intent, got %+v", intent)
	}
}

func TestSuggestTable(t *testing.T) {
	tables := []string{"table_providers", "table_course_fees"}

	chat := &scriptedChat{replies: []string{"TABLE_COURSE_FEES"}}
	classifier := NewQueryClassifier(chat, domain.DefaultVocabulary(), 0)
	if got := classifier.SuggestTable(context.Background(), "fees for nursing", tables); got != "table_course_fees" {
		t.Fatalf("suggested %q", got)
	}

	if got := classifier.SuggestTable(context.Background(), "anything", tables[:1]); got != "table_providers" {
		t.Fatalf("single table should be returned directly, got %q", got)
	}
	if got := classifier.SuggestTable(context.Background(), "anything", nil); got != "" {
		t.Fatalf("no tables should yield empty, got %q", got)
	}

	failing := NewQueryClassifier(&scriptedChat{err: errors.New("down")}, domain.DefaultVocabulary(), 0)
	if got := failing.SuggestTable(context.Background(), "fees", tables); got != "table_providers" {
		t.Fatalf("failure should fall back to first table, got %q", got)
	}
}

func TestClassifyRoutingExamples(t *testing.T) {
	tables := []string{"table_providers", "table_course_fees"}
	keywordOnly := &scriptedChat{err: errors.New("must not be called")}
	classifier := NewQueryClassifier(keywordOnly, domain.DefaultVocabulary(), 0)

	if got := classifier.Classify(context.Background(), "How many providers are in NSW?", tables); got.QueryType != domain.QueryTypeStructured || got.RAGMatches != 0 || got.SQLMatches < 2 {
		t.Fatalf("expected structured by keywords, got %+v", got)
	}
	if got := classifier.Classify(context.Background(), "List all providers and explain the application process", tables); got.QueryType != domain.QueryTypeHybrid || got.Method != domain.MethodKeyword {
		t.Fatalf("expected hybrid by keywords, got %+v", got)
	}
	if keywordOnly.promptCount() != 0 {
		t.Fatalf("keyword decisions should not call the model")
	}

	for name, chat := range map[string]*scriptedChat{
		"model down":    {err: errors.New("model offline")},
		"model answers": {replies: []string{"SEMANTIC_RAG"}},
	} {
		classifier := NewQueryClassifier(chat, domain.DefaultVocabulary(), 0)
		got := classifier.Classify(context.Background(), "How do I add a lead in the CRM?", tables)
		if got.QueryType != domain.QueryTypeSemantic || !got.RequiresRAG || got.RequiresSQL {
			t.Fatalf("%s: expected semantic, got %+v", name, got)
		}
		if got.Method != domain.MethodLLM || chat.promptCount() != 1 {
			t.Fatalf("%s: expected one model call for the tie break, got %s/%d", name, got.Method, chat.promptCount())
		}
	}
}
