package migration

import (
	"fmt"
)

// Log adalah urutan baris log yang ditampilkan ke operator.
type Log struct {
	Lines []string `json:"lines"`
}

func NewLog() *Log { return &Log{Lines: []string{}} }

func (l *Log) Add(format string, args ...interface{}) {
	l.Lines = append(l.Lines, fmt.Sprintf(format, args...))
}

// WriteError: penyimpanan satu baris gagal. Fatal untuk tabel yang sedang diproses.
type WriteError struct {
	Table string
	Key   string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s (key %s): %v", e.Table, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// MigrationError menghentikan run dan membawa log parsial sampai titik gagal.
type MigrationError struct {
	Log   *Log
	Table string
	Err   error
}

func (e *MigrationError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("migration failed: %v", e.Err)
	}
	return fmt.Sprintf("migration failed at table %s: %v", e.Table, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
