// internal/source/source.go
package source

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/db"
)

// Kind adalah jenis source migrasi.
type Kind string

const (
	KindBackupTables Kind = "backup-tables"
	KindOldDB        Kind = "old-db"
	KindSQLDump      Kind = "sql-dump"
)

// ParseKind menerima nama source dari CLI / HTTP.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBackupTables, KindOldDB, KindSQLDump:
		return k, nil
	case "":
		return KindBackupTables, nil
	default:
		return "", fmt.Errorf("unknown source %q (valid: %s, %s, %s)", s, KindBackupTables, KindOldDB, KindSQLDump)
	}
}

// Row adalah satu baris source: kolom tujuan -> nilai.
type Row map[string]interface{}

// Clone membuat salinan dangkal, transform tidak boleh mengubah cache source.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Source menghasilkan baris ternormalisasi untuk tabel logis tujuan.
type Source interface {
	Kind() Kind
	// Fetch mengembalikan semua baris tabel. Tabel yang tidak ada di source
	// dilaporkan sebagai error yang memenuhi IsUnavailable.
	Fetch(ctx context.Context, table string) ([]Row, error)
	Close() error
}

// Dialer membuka koneksi ke database legacy; database kosong = nama dari konfigurasi.
type Dialer func(ctx context.Context, database string) (*db.Connector, error)

// Config memilih dan mengatur source.
type Config struct {
	Kind         Kind
	Database     string // old-db: override nama database
	File         string // sql-dump: path file
	BackupSuffix string
	BatchSize    int
}

// Open membuat Source sesuai cfg.Kind. dst dipakai oleh backup-tables, dial oleh old-db.
func Open(ctx context.Context, cfg Config, dst *db.Connector, dial Dialer, logger *zap.Logger) (Source, error) {
	log := logger.Named("source").With(zap.String("source", string(cfg.Kind)))
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	switch cfg.Kind {
	case KindBackupTables, "":
		if dst == nil {
			return nil, &ConnectionError{Kind: KindBackupTables, Target: "destination", Err: fmt.Errorf("destination connection is nil")}
		}
		suffix := cfg.BackupSuffix
		if suffix == "" {
			suffix = "_backup"
		}
		return &backupSource{conn: dst, suffix: suffix, batchSize: cfg.BatchSize, logger: log}, nil
	case KindOldDB:
		if dial == nil {
			return nil, &ConnectionError{Kind: KindOldDB, Target: cfg.Database, Err: fmt.Errorf("legacy database is not configured (LEGACY_DIALECT)")}
		}
		conn, err := dial(ctx, cfg.Database)
		if err != nil {
			return nil, &ConnectionError{Kind: KindOldDB, Target: cfg.Database, Err: err}
		}
		return &legacySource{conn: conn, batchSize: cfg.BatchSize, logger: log}, nil
	case KindSQLDump:
		return openDump(cfg.File, log)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
