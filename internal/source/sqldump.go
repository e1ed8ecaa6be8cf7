package source

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/xwb1989/sqlparser"
)

// statement adalah satu statement SQL dari file dump beserta baris awalnya.
type statement struct {
	Text string
	Line int
}

// splitStatements memisahkan script SQL per ';' dengan memperhatikan string literal
// ('...', "...", `...`, escape backslash dan kutip ganda) serta komentar (--, #, /* */).
func splitStatements(script string) []statement {
	var (
		statements []statement
		current    strings.Builder
		startLine  = 0
		line       = 1
		quote      rune // 0 = di luar string
	)

	runes := []rune(script)
	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			statements = append(statements, statement{Text: text, Line: startLine})
		}
		current.Reset()
		startLine = 0
	}
	write := func(r rune) {
		if startLine == 0 && !unicode.IsSpace(r) {
			startLine = line
		}
		current.WriteRune(r)
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			line++
		}

		if quote != 0 {
			write(r)
			switch {
			case r == '\\' && quote != '`' && i+1 < len(runes):
				i++
				if runes[i] == '\n' {
					line++
				}
				write(runes[i])
			case r == quote:
				if i+1 < len(runes) && runes[i+1] == quote {
					// kutip ganda '' di dalam string
					i++
					write(runes[i])
				} else {
					quote = 0
				}
			}
			continue
		}

		switch {
		case r == '\'' || r == '"' || r == '`':
			quote = r
			write(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-', r == '#':
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				if runes[i] == '\n' {
					line++
				}
				i++
			}
			i++ // lewati '/'
			current.WriteRune(' ')
		case r == ';':
			flush()
		default:
			write(r)
		}
	}
	flush()
	return statements
}

var errNoColumns = errors.New("INSERT without column list and no CREATE TABLE for the table earlier in the dump")

// parsedInsert adalah hasil parse satu statement INSERT.
type parsedInsert struct {
	Table   string
	Columns []string
	Tuples  [][]interface{}
}

func isInsert(text string) bool {
	return len(text) >= 6 && strings.EqualFold(text[:6], "INSERT")
}

func isCreateTable(text string) bool {
	f := strings.Fields(text)
	return len(f) >= 2 && strings.EqualFold(f[0], "CREATE") && strings.EqualFold(f[1], "TABLE")
}

// parseCreateTable mengembalikan nama tabel dan urutan kolomnya, ok=false jika bukan CREATE TABLE
// atau definisinya tidak bisa diparse.
func parseCreateTable(text string) (string, []string, bool) {
	if !isCreateTable(text) {
		return "", nil, false
	}
	stmt, err := sqlparser.ParseStrictDDL(text)
	if err != nil {
		return "", nil, false
	}
	ddl, ok := stmt.(*sqlparser.DDL)
	if !ok || ddl.Action != sqlparser.CreateStr || ddl.TableSpec == nil {
		return "", nil, false
	}
	cols := make([]string, 0, len(ddl.TableSpec.Columns))
	for _, c := range ddl.TableSpec.Columns {
		cols = append(cols, c.Name.Lowered())
	}
	return strings.ToLower(ddl.NewName.Name.String()), cols, true
}

// parseInsert mem-parse INSERT INTO t [(cols)] VALUES (...),(...).
// knownColumns dipakai jika INSERT tidak menyebut kolom.
func parseInsert(text string, knownColumns map[string][]string) (*parsedInsert, error) {
	stmt, err := sqlparser.Parse(text)
	if err != nil {
		return nil, err
	}
	ins, ok := stmt.(*sqlparser.Insert)
	if !ok || ins.Action != sqlparser.InsertStr {
		return nil, errors.New("unsupported INSERT syntax")
	}
	if len(ins.OnDup) > 0 {
		return nil, errors.New("unsupported ON DUPLICATE KEY UPDATE clause")
	}
	rows, ok := ins.Rows.(sqlparser.Values)
	if !ok {
		return nil, errors.New("unsupported INSERT ... SELECT")
	}
	table := strings.ToLower(ins.Table.Name.String())

	var cols []string
	if len(ins.Columns) > 0 {
		for _, c := range ins.Columns {
			cols = append(cols, c.Lowered())
		}
	} else {
		cols = knownColumns[table]
		if len(cols) == 0 {
			return nil, errNoColumns
		}
	}

	tuples := make([][]interface{}, 0, len(rows))
	for i, tuple := range rows {
		if len(tuple) != len(cols) {
			return nil, fmt.Errorf("tuple %d has %d values, expected %d", i+1, len(tuple), len(cols))
		}
		values := make([]interface{}, 0, len(tuple))
		for _, expr := range tuple {
			v, err := literalValue(expr)
			if err != nil {
				return nil, fmt.Errorf("tuple %d: %w", i+1, err)
			}
			values = append(values, v)
		}
		tuples = append(tuples, values)
	}
	return &parsedInsert{Table: table, Columns: cols, Tuples: tuples}, nil
}

// literalValue mengubah literal dump menjadi nilai Go: int64 untuk bilangan bulat,
// teks untuk desimal (dikonversi exact di transform), nil untuk NULL.
func literalValue(expr sqlparser.Expr) (interface{}, error) {
	switch v := expr.(type) {
	case *sqlparser.NullVal:
		return nil, nil
	case sqlparser.BoolVal:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case *sqlparser.SQLVal:
		switch v.Type {
		case sqlparser.StrVal:
			return string(v.Val), nil
		case sqlparser.IntVal:
			if i, err := strconv.ParseInt(string(v.Val), 10, 64); err == nil {
				return i, nil
			}
			return string(v.Val), nil
		case sqlparser.FloatVal:
			return string(v.Val), nil
		case sqlparser.HexNum:
			u, err := strconv.ParseUint(string(v.Val[2:]), 16, 63)
			if err != nil {
				return nil, fmt.Errorf("invalid hex number %s", v.Val)
			}
			return int64(u), nil
		case sqlparser.HexVal:
			b, err := v.HexDecode()
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
	case *sqlparser.UnaryExpr:
		if v.Operator != sqlparser.UMinusStr && v.Operator != sqlparser.UPlusStr {
			break
		}
		inner, err := literalValue(v.Expr)
		if err != nil {
			return nil, err
		}
		neg := v.Operator == sqlparser.UMinusStr
		switch n := inner.(type) {
		case int64:
			if neg {
				return -n, nil
			}
			return n, nil
		case string:
			if _, err := strconv.ParseFloat(n, 64); err != nil {
				break
			}
			if neg {
				return "-" + n, nil
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("unsupported value expression %s", sqlparser.String(expr))
}
