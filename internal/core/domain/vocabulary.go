package domain

import "strings"

// DefaultVocabulary returns the built-in study-counselling vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		StructuredKeywords: []string{
			"count", "total", "sum", "average", "max", "min", "how many",
			"list all", "show all", "filter", "where", "group by", "aggregate",
			"statistics", "top", "bottom", "ranking", "fees", "fee", "provider",
			"providers", "course", "courses", "data", "records", "entries",
			"price", "cost", "degree", "degrees",
		},
		SemanticKeywords: []string{
			"how to", "what is", "explain", "describe", "why", "process",
			"procedure", "steps", "guide", "overview", "concept", "definition",
			"meaning", "purpose", "workflow", "application", "management",
			"leads", "crm",
		},
		Acronyms: map[string]string{
			"CRM": "Customer Relationship Management",
			"AI":  "Artificial Intelligence",
			"ML":  "Machine Learning",
			"NLP": "Natural Language Processing",
			"RAG": "Retrieval Augmented Generation",
			"LLM": "Large Language Model",
			"API": "Application Programming Interface",
			"UI":  "User Interface",
			"UX":  "User Experience",
			"PDF": "Portable Document Format",
			"CSV": "Comma Separated Values",
			"SQL": "Structured Query Language",
			"RPL": "Recognition of Prior Learning",
			"NSW": "New South Wales",
		},
		StopWords: []string{
			"the", "is", "at", "which", "on", "and", "a", "an", "as", "are",
			"was", "were", "be", "been", "being", "have", "has", "had", "do",
			"does", "did", "will", "would", "could", "should", "may", "might",
			"must", "can", "shall", "to", "of", "in", "for", "with", "by",
			"from", "about", "into", "through", "during", "before", "after",
			"above", "below", "up", "down", "out", "off", "over", "under",
			"again", "further",
		},
	}
}

// Merge overlays the non-empty sections of override onto v. Acronyms are
// merged key by key; keyword lists are replaced whole.
func (v Vocabulary) Merge(override Vocabulary) Vocabulary {
	out := v
	if len(override.StructuredKeywords) > 0 {
		out.StructuredKeywords = append([]string(nil), override.StructuredKeywords...)
	}
	if len(override.SemanticKeywords) > 0 {
		out.SemanticKeywords = append([]string(nil), override.SemanticKeywords...)
	}
	if len(override.StopWords) > 0 {
		out.StopWords = append([]string(nil), override.StopWords...)
	}
	if len(override.Acronyms) > 0 {
		acronyms := make(map[string]string, len(v.Acronyms)+len(override.Acronyms))
		for k, full := range v.Acronyms {
			acronyms[k] = full
		}
		for k, full := range override.Acronyms {
			acronyms[strings.ToUpper(k)] = full
		}
		out.Acronyms = acronyms
	}
	return out
}
