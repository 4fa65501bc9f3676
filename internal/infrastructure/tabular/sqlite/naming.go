package sqlite

import (
	"strings"
	"unicode"
)

// SanitizeTableName derives a SQL identifier from a source filename:
// extension removed, non-alphanumerics collapsed to single underscores,
// no leading digits or underscores, lowercase.
func SanitizeTableName(filename string) string {
	name := filename
	for _, ext := range []string{".csv", ".CSV", ".xlsx", ".XLSX"} {
		name = strings.ReplaceAll(name, ext, "")
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name = strings.TrimLeft(b.String(), "0123456789_")

	parts := strings.Split(name, "_")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	name = strings.Join(kept, "_")

	if name != "" && unicode.IsDigit([]rune(name)[0]) {
		name = "table_" + name
	}
	if name == "" {
		return "unnamed_table"
	}
	return strings.ToLower(name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
