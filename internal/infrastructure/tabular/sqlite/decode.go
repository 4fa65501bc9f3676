package sqlite

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	typeInteger = "INTEGER"
	typeReal    = "REAL"
	typeText    = "TEXT"
)

// frame is a decoded table before it is written to SQLite.
type frame struct {
	columns  []string
	types    []string
	rows     [][]string
	encoding string
}

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// encodingCascade is tried in order; the first encoding that yields a
// well-formed CSV wins.
var encodingCascade = []namedEncoding{
	{name: "utf-8"},
	{name: "latin-1", enc: charmap.ISO8859_1},
	{name: "iso-8859-1", enc: charmap.ISO8859_1},
	{name: "cp1252", enc: charmap.Windows1252},
	{name: "utf-16", enc: unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
}

var errUndecodable = errors.New("no encoding produced a readable table")

func decodeCSV(raw []byte) (*frame, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty file")
	}
	var lastErr error
	for _, candidate := range encodingCascade {
		text, err := decodeBytes(raw, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		f, err := parseCSV(text)
		if err != nil {
			lastErr = err
			continue
		}
		f.encoding = candidate.name
		return f, nil
	}
	return nil, fmt.Errorf("%w: %v", errUndecodable, lastErr)
}

func decodeBytes(raw []byte, candidate namedEncoding) (string, error) {
	if candidate.enc == nil {
		if !utf8.Valid(raw) {
			return "", errors.New("invalid utf-8")
		}
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	}
	decoded, err := candidate.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	text := strings.TrimPrefix(string(decoded), "\ufeff")
	if strings.ContainsRune(text, 0) {
		return "", errors.New("line contains NUL")
	}
	return text, nil
}

func parseCSV(text string) (*frame, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return buildFrame(records)
}

func decodeXLSX(data io.Reader) (*frame, error) {
	book, err := excelize.OpenReader(data)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	f, err := buildFrame(rows)
	if err != nil {
		return nil, err
	}
	f.encoding = "xlsx"
	return f, nil
}

func buildFrame(records [][]string) (*frame, error) {
	if len(records) == 0 {
		return nil, errors.New("no header row")
	}
	columns := normalizeHeader(records[0])
	rows := make([][]string, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) > len(columns) {
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", i+2, len(columns), len(record))
		}
		if isBlankRecord(record) {
			continue
		}
		row := make([]string, len(columns))
		copy(row, record)
		rows = append(rows, row)
	}
	return &frame{
		columns: columns,
		types:   inferTypes(len(columns), rows),
		rows:    rows,
	}, nil
}

// normalizeHeader names blank columns "unnamed_N" and suffixes duplicates.
func normalizeHeader(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		key := strings.ToLower(name)
		if n := seen[key]; n > 0 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		seen[key]++
		out[i] = name
	}
	return out
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func inferTypes(width int, rows [][]string) []string {
	types := make([]string, width)
	for col := 0; col < width; col++ {
		types[col] = inferColumnType(rows, col)
	}
	return types
}

func inferColumnType(rows [][]string, col int) string {
	sawValue := false
	allInt := true
	allNumeric := true
	for _, row := range rows {
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allNumeric = false
			break
		}
	}
	switch {
	case !sawValue:
		return typeText
	case allInt:
		return typeInteger
	case allNumeric:
		return typeReal
	default:
		return typeText
	}
}

// convertValue turns a cell into the value bound for its column type.
// Blank cells become NULL.
func convertValue(raw, columnType string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch columnType {
	case typeInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case typeReal:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return raw
}
