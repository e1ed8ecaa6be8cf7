package source

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable berarti tabel tidak tersedia di source ini. Bisa dipulihkan:
// orchestrator memakai seed bawaan tabel dan lanjut.
var ErrSourceUnavailable = errors.New("source table unavailable")

// SourceError membungkus ErrSourceUnavailable dengan konteks tabel.
type SourceError struct {
	Kind  Kind
	Table string
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source: table %s: %v", e.Kind, e.Table, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ConnectionError: source tidak bisa dibuka sama sekali (DB legacy / file dump). Fatal.
type ConnectionError struct {
	Kind   Kind
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot open %s source %q: %v", e.Kind, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError: statement INSERT di file dump tidak bisa diparse. Fatal.
type ParseError struct {
	File      string
	Line      int
	Statement string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v (statement: %s)", e.File, e.Line, e.Err, e.Statement)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err means the table can be replaced by its seed.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}
