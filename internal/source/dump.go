package source

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// dumpSource membaca INSERT dari file dump SQL. File diparse sekali saat dibuka.
type dumpSource struct {
	path   string
	tables map[string][]Row
	logger *zap.Logger
}

func openDump(path string, logger *zap.Logger) (*dumpSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ConnectionError{Kind: KindSQLDump, Target: path, Err: fmt.Errorf("dump file path is empty")}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConnectionError{Kind: KindSQLDump, Target: path, Err: err}
	}

	script, err := decodeDump(raw)
	if err != nil {
		return nil, &ParseError{File: path, Line: 0, Err: err}
	}

	tables, err := parseDump(path, script)
	if err != nil {
		return nil, err
	}

	counts := make([]zap.Field, 0, len(tables))
	for t, rows := range tables {
		counts = append(counts, zap.Int(t, len(rows)))
	}
	logger.Info("SQL dump parsed", append([]zap.Field{zap.String("file", path)}, counts...)...)

	return &dumpSource{path: path, tables: tables, logger: logger}, nil
}

func (s *dumpSource) Kind() Kind { return KindSQLDump }

// Fetch mengembalikan salinan baris; tabel tanpa INSERT di dump menghasilkan nol baris.
func (s *dumpSource) Fetch(ctx context.Context, table string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cached := s.tables[table]
	rows := make([]Row, 0, len(cached))
	for _, r := range cached {
		rows = append(rows, r.Clone())
	}
	return rows, nil
}

func (s *dumpSource) Close() error { return nil }

// decodeDump: UTF-8 apa adanya (BOM dibuang); selain itu BOM UTF-16 atau Windows-1252.
func decodeDump(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "\uFEFF"), nil
	}
	dec := unicode.BOMOverride(charmap.Windows1252.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("decode dump: %w", err)
	}
	return strings.TrimPrefix(string(out), "\uFEFF"), nil
}

// parseDump mengumpulkan baris ternormalisasi per tabel logis dari semua INSERT.
func parseDump(path, script string) (map[string][]Row, error) {
	tables := make(map[string][]Row)
	createdColumns := make(map[string][]string)

	for _, stmt := range splitStatements(script) {
		if name, cols, ok := parseCreateTable(stmt.Text); ok {
			createdColumns[name] = cols
			continue
		}
		if !isInsert(stmt.Text) {
			continue
		}

		ins, err := parseInsert(stmt.Text, createdColumns)
		if err != nil {
			return nil, &ParseError{File: path, Line: stmt.Line, Statement: truncate(stmt.Text, 80), Err: err}
		}
		if _, known := tableColumns[ins.Table]; !known {
			continue // tabel di luar skema (sessions, migrations, ...)
		}

		for _, tuple := range ins.Tuples {
			raw := make(map[string]interface{}, len(ins.Columns))
			for i, c := range ins.Columns {
				raw[c] = tuple[i]
			}
			row, err := NormalizeRow(ins.Table, raw)
			if err != nil {
				return nil, &ParseError{File: path, Line: stmt.Line, Statement: truncate(stmt.Text, 80), Err: err}
			}
			tables[ins.Table] = append(tables[ins.Table], row)
		}
	}
	return tables, nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
