package utils

import (
	"strings"
)

// QuoteIdentifier quotes an identifier based on the specified SQL dialect.
// Handles basic escaping for the quote character itself within the name.
func QuoteIdentifier(name, dialect string) string {
	switch strings.ToLower(dialect) {
	case "mysql":
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		// postgres, sqlite, dan fallback ANSI
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QuoteQualified quotes "alias"."column" (dipakai di query anti-join).
func QuoteQualified(qualifier, name, dialect string) string {
	return QuoteIdentifier(qualifier, dialect) + "." + QuoteIdentifier(name, dialect)
}

// Chunk memecah slice menjadi potongan maksimal size elemen (untuk daftar IN yang panjang).
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
