package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var errEmptyQuery = errors.New("query is empty")

// writeKeywords may not appear anywhere in ad hoc SQL, including inside a
// WITH clause. REPLACE is only refused as a statement, not as the string
// function.
var writeKeywords = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "CREATE": {},
	"ALTER": {}, "ATTACH": {}, "DETACH": {}, "PRAGMA": {}, "VACUUM": {},
	"REINDEX": {}, "ANALYZE": {}, "BEGIN": {}, "COMMIT": {}, "ROLLBACK": {},
	"SAVEPOINT": {}, "RELEASE": {},
}

// CheckReadOnly accepts a single SELECT or WITH statement and refuses
// anything that could change the loaded tables or the connection state.
func CheckReadOnly(query string) error {
	words, statements := scanSQL(query)
	if len(words) == 0 {
		return errEmptyQuery
	}
	if statements > 1 {
		return errors.New("only a single statement is allowed")
	}
	switch words[0].text {
	case "SELECT", "WITH":
	default:
		return fmt.Errorf("only SELECT queries are allowed, got %s", words[0].text)
	}
	for _, w := range words {
		if _, ok := writeKeywords[w.text]; ok {
			return fmt.Errorf("%s is not allowed in a query", w.text)
		}
		if w.text == "REPLACE" && !w.call {
			return errors.New("REPLACE is not allowed in a query")
		}
	}
	return nil
}

type sqlWord struct {
	text string
	// call is set when the word is directly followed by "(".
	call bool
}

// scanSQL returns the upper-cased bare words of query and the number of
// non-empty statements. Quoted strings, quoted identifiers and comments are
// skipped.
func scanSQL(query string) ([]sqlWord, int) {
	runes := []rune(query)
	words := make([]sqlWord, 0, 16)
	statements := 0
	pending := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
		case r == '\'' || r == '"' || r == '`' || r == '[':
			closer := r
			if r == '[' {
				closer = ']'
			}
			i++
			for i < len(runes) {
				if runes[i] == closer {
					// A doubled quote is an escaped quote.
					if closer != ']' && i+1 < len(runes) && runes[i+1] == closer {
						i += 2
						continue
					}
					break
				}
				i++
			}
			pending = true
		case r == ';':
			if pending {
				statements++
				pending = false
			}
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i+1 < len(runes) && (unicode.IsLetter(runes[i+1]) || unicode.IsDigit(runes[i+1]) || runes[i+1] == '_') {
				i++
			}
			word := sqlWord{text: strings.ToUpper(string(runes[start : i+1]))}
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			word.call = j < len(runes) && runes[j] == '('
			words = append(words, word)
			pending = true
		case !unicode.IsSpace(r):
			pending = true
		}
	}
	if pending {
		statements++
	}
	return words, statements
}
