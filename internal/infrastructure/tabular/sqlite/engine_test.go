package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const providersCSV = "name,state,fee\nAlpha College,NSW,12000\nBeta Institute,VIC,15000.5\nGamma Academy,NSW,\n"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(Options{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func loadProviders(t *testing.T, engine *Engine) {
	t.Helper()
	info, err := engine.LoadTable(context.Background(), "", "providers.csv", strings.NewReader(providersCSV), domain.TableLoadOptions{})
	if err != nil {
		t.Fatalf("load providers: %v", err)
	}
	if info.Name != "providers" || info.RowCount != 3 || info.Columns != 3 {
		t.Fatalf("unexpected table info: %+v", info)
	}
}

func TestExecuteCount(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)

	result := engine.Execute(context.Background(), "SELECT COUNT(*) AS n FROM providers", 0)
	if !result.Success {
		t.Fatalf("query failed: %s", result.Error)
	}
	if result.RowCount != 1 {
		t.Fatalf("expected one row, got %d", result.RowCount)
	}
	if got := result.Data[0]["n"]; got != int64(3) {
		t.Fatalf("count = %#v, want 3", got)
	}
	if !strings.HasSuffix(result.Query, " LIMIT 100") {
		t.Fatalf("expected default limit appended, got %q", result.Query)
	}
}

func TestExecuteEnforcesDefaultLimit(t *testing.T) {
	engine := newTestEngine(t)

	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&b, "%d,row %d\n", i, i)
	}
	if _, err := engine.LoadTable(context.Background(), "", "big.csv", strings.NewReader(b.String()), domain.TableLoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}

	result := engine.Execute(context.Background(), "SELECT * FROM big", 0)
	if !result.Success {
		t.Fatalf("query failed: %s", result.Error)
	}
	if result.RowCount != DefaultQueryLimit {
		t.Fatalf("expected %d rows, got %d", DefaultQueryLimit, result.RowCount)
	}
}

func TestApplyRowLimit(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{query: "SELECT * FROM t", want: "SELECT * FROM t LIMIT 100"},
		{query: "select * from t limit 5", want: "select * from t limit 5"},
		{query: "SELECT * FROM t;", want: "SELECT * FROM t;"},
		{query: "SELECT * FROM t;  ", want: "SELECT * FROM t;  "},
	}
	for _, tt := range tests {
		if got := ApplyRowLimit(tt.query, 100); got != tt.want {
			t.Fatalf("ApplyRowLimit(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestExecuteReturnsStructuredError(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)

	result := engine.Execute(context.Background(), "SELECT missing FROM nowhere", 0)
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.Error == "" || result.Query == "" {
		t.Fatalf("expected error and query in result: %+v", result)
	}
}

func TestExecuteIsReadOnly(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)

	result := engine.Execute(context.Background(), "DELETE FROM providers;", 0)
	if result.Success {
		t.Fatalf("expected write to be rejected")
	}
	count := engine.Execute(context.Background(), "SELECT COUNT(*) AS n FROM providers", 0)
	if count.Data[0]["n"] != int64(3) {
		t.Fatalf("table was modified: %#v", count.Data)
	}
}

func TestExecuteCannotLiftReadOnlyGuard(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)
	ctx := context.Background()

	for _, query := range []string{
		"PRAGMA query_only = OFF;",
		"DELETE FROM providers;",
		"SELECT 1; DELETE FROM providers;",
		"WITH doomed AS (SELECT name FROM providers) DELETE FROM providers;",
		"ATTACH DATABASE 'x.db' AS x;",
	} {
		result := engine.Execute(ctx, query, 0)
		if result.Success || result.Error == "" {
			t.Fatalf("%q should be refused: %+v", query, result)
		}
	}

	count := engine.Execute(ctx, "SELECT COUNT(*) AS n FROM providers", 0)
	if !count.Success || count.Data[0]["n"] != int64(3) {
		t.Fatalf("table was modified: %+v", count)
	}
	schema, err := engine.TableSchema(ctx, "providers")
	if err != nil || schema.RowCount != 3 {
		t.Fatalf("schema row count drifted: %+v %v", schema, err)
	}
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{query: "SELECT name FROM providers", ok: true},
		{query: "  select name from providers where state = 'NSW';  ", ok: true},
		{query: "WITH nsw AS (SELECT * FROM providers WHERE state = 'NSW') SELECT COUNT(*) FROM nsw", ok: true},
		{query: "SELECT replace(name, 'College', 'C') FROM providers", ok: true},
		{query: "SELECT name FROM providers WHERE name = 'drop; delete'", ok: true},
		{query: "SELECT created_at, \"update\" FROM providers -- delete later", ok: true},
		{query: "", ok: false},
		{query: " ; ", ok: false},
		{query: "PRAGMA table_info(providers)", ok: false},
		{query: "REPLACE INTO providers VALUES ('a', 'b', 1)", ok: false},
		{query: "UPDATE providers SET fee = 0", ok: false},
		{query: "SELECT 1; SELECT 2", ok: false},
		{query: "/* hi */ DROP TABLE providers", ok: false},
	}
	for _, tt := range tests {
		err := CheckReadOnly(tt.query)
		if (err == nil) != tt.ok {
			t.Fatalf("CheckReadOnly(%q) error = %v, want ok=%v", tt.query, err, tt.ok)
		}
	}
}

func TestLoadSkipsExistingUnlessForced(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)

	info, err := engine.LoadTable(context.Background(), "", "providers.csv", strings.NewReader("name\nOnly\n"), domain.TableLoadOptions{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !info.Skipped {
		t.Fatalf("expected duplicate table to be skipped")
	}
	schema, _ := engine.TableSchema(context.Background(), "providers")
	if schema.RowCount != 3 {
		t.Fatalf("table was overwritten: %+v", schema)
	}

	info, err = engine.LoadTable(context.Background(), "", "providers.csv", strings.NewReader("name\nOnly\n"), domain.TableLoadOptions{Force: true})
	if err != nil || info.Skipped {
		t.Fatalf("forced reload failed: info=%+v err=%v", info, err)
	}
	schema, _ = engine.TableSchema(context.Background(), "providers")
	if schema.RowCount != 1 || len(schema.Columns) != 1 {
		t.Fatalf("forced reload not applied: %+v", schema)
	}
	if tables := engine.Tables(); len(tables) != 1 {
		t.Fatalf("expected one table, got %v", tables)
	}
}

func TestSchemaInfersTypesAndSamples(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)

	schema, err := engine.TableSchema(context.Background(), "providers")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	want := []string{typeText, typeText, typeReal}
	for i, col := range schema.Columns {
		if col.DataType != want[i] {
			t.Fatalf("column %s type = %s, want %s", col.Name, col.DataType, want[i])
		}
	}
	if got := schema.Columns[0].SampleValues; len(got) != 3 || got[0] != "Alpha College" {
		t.Fatalf("unexpected samples: %v", got)
	}

	if _, err := engine.TableSchema(context.Background(), "nope"); !errors.Is(err, domain.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestLoadLatin1AndUTF16(t *testing.T) {
	engine := newTestEngine(t)

	latin, err := charmap.ISO8859_1.NewEncoder().String("city,name\nSão Paulo,José\n")
	if err != nil {
		t.Fatalf("encode latin-1: %v", err)
	}
	info, err := engine.LoadTable(context.Background(), "", "cities.csv", strings.NewReader(latin), domain.TableLoadOptions{})
	if err != nil {
		t.Fatalf("load latin-1: %v", err)
	}
	if info.Encoding != "latin-1" {
		t.Fatalf("encoding = %s, want latin-1", info.Encoding)
	}
	result := engine.Execute(context.Background(), "SELECT name FROM cities", 0)
	if result.Data[0]["name"] != "José" {
		t.Fatalf("unexpected decoded value: %#v", result.Data)
	}

	utf16 := []byte{0xFF, 0xFE}
	for _, r := range "a,b\n1,2\n" {
		utf16 = append(utf16, byte(r), 0)
	}
	info, err = engine.LoadTable(context.Background(), "", "wide.csv", bytes.NewReader(utf16), domain.TableLoadOptions{})
	if err != nil {
		t.Fatalf("load utf-16: %v", err)
	}
	if info.Encoding != "utf-16" || info.RowCount != 1 {
		t.Fatalf("unexpected utf-16 load: %+v", info)
	}
}

func TestLoadXLSX(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	_ = book.SetSheetRow(sheet, "A1", &[]any{"course", "fee"})
	_ = book.SetSheetRow(sheet, "A2", &[]any{"Nursing", 32000})
	_ = book.SetSheetRow(sheet, "A3", &[]any{"IT", 28000})
	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	engine := newTestEngine(t)
	info, err := engine.LoadTable(context.Background(), "", "Course Fees.xlsx", &buf, domain.TableLoadOptions{})
	if err != nil {
		t.Fatalf("load xlsx: %v", err)
	}
	if info.Name != "course_fees" || info.RowCount != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
	result := engine.Execute(context.Background(), "SELECT SUM(fee) AS total FROM course_fees", 0)
	if !result.Success || result.Data[0]["total"] != int64(60000) {
		t.Fatalf("unexpected sum: %+v", result)
	}
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.LoadTable(context.Background(), "", "empty.csv", strings.NewReader(""), domain.TableLoadOptions{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPreviewAndToString(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)
	ctx := context.Background()

	preview, err := engine.Preview(ctx, "providers", 2)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	for _, want := range []string{"Table: providers\n", "Total Rows: 3\n", "Columns: name, state, fee\n\n", "First few rows:\n", "Alpha College"} {
		if !strings.Contains(preview, want) {
			t.Fatalf("preview missing %q:\n%s", want, preview)
		}
	}
	if strings.Contains(preview, "Gamma Academy") {
		t.Fatalf("preview should stop at 2 rows:\n%s", preview)
	}

	if _, err := engine.Preview(ctx, "missing", 5); !errors.Is(err, domain.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}

	out := engine.ExecuteToString(ctx, "SELECT name FROM providers WHERE state = 'NSW'", 0)
	if !strings.HasPrefix(out, "Query Results (2 rows):") {
		t.Fatalf("unexpected output: %s", out)
	}
	if out := engine.ExecuteToString(ctx, "SELECT name FROM providers WHERE state = 'QLD'", 0); out != "Query executed successfully but returned no results." {
		t.Fatalf("unexpected empty output: %s", out)
	}
	if out := engine.ExecuteToString(ctx, "SELEC nonsense", 0); !strings.HasPrefix(out, "Error executing query: ") {
		t.Fatalf("unexpected error output: %s", out)
	}
}

func TestLoadDirectoryAndReload(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "2024 Provider List.csv"), []byte(providersCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	engine, err := New(Options{Directories: []string{dir, filepath.Join(dir, "missing")}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	defer engine.Close()

	n, err := engine.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 table loaded, got %d", n)
	}
	if tables := engine.Tables(); len(tables) != 1 || tables[0] != "provider_list" {
		t.Fatalf("unexpected tables: %v", tables)
	}

	n, err = engine.Reload(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("second reload: n=%d err=%v", n, err)
	}
}

func TestConcurrentQueriesAndLoads(t *testing.T) {
	engine := newTestEngine(t)
	loadProviders(t, engine)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				name := fmt.Sprintf("extra_%d", n)
				if _, err := engine.LoadTable(context.Background(), name, name+".csv", strings.NewReader("a\n1\n"), domain.TableLoadOptions{}); err != nil {
					t.Errorf("load %s: %v", name, err)
				}
				return
			}
			if result := engine.Execute(context.Background(), "SELECT COUNT(*) FROM providers", 0); !result.Success {
				t.Errorf("query failed: %s", result.Error)
			}
		}(i)
	}
	wg.Wait()
	if got := len(engine.Tables()); got != 5 {
		t.Fatalf("expected 5 tables, got %d", got)
	}
}
