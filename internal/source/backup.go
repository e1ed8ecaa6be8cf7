package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/db"
)

// backupSource membaca <table><suffix> dari database tujuan.
type backupSource struct {
	conn      *db.Connector
	suffix    string
	batchSize int
	logger    *zap.Logger
}

func (s *backupSource) Kind() Kind { return KindBackupTables }

func (s *backupSource) Fetch(ctx context.Context, table string) ([]Row, error) {
	name := table + s.suffix
	if !s.conn.HasTable(name) {
		return nil, &SourceError{Kind: KindBackupTables, Table: name, Err: ErrSourceUnavailable}
	}
	return fetchTable(ctx, s.conn, name, table, s.batchSize, s.logger)
}

// Close tidak menutup koneksi tujuan, pemiliknya engine.
func (s *backupSource) Close() error { return nil }

// legacySource membaca tabel dengan nama yang sama dari database legacy.
type legacySource struct {
	conn      *db.Connector
	batchSize int
	logger    *zap.Logger
}

func (s *legacySource) Kind() Kind { return KindOldDB }

func (s *legacySource) Fetch(ctx context.Context, table string) ([]Row, error) {
	if !s.conn.HasTable(table) {
		return nil, &SourceError{Kind: KindOldDB, Table: table, Err: ErrSourceUnavailable}
	}
	return fetchTable(ctx, s.conn, table, table, s.batchSize, s.logger)
}

func (s *legacySource) Close() error {
	return s.conn.Close()
}

// fetchTable membaca tabel fisik per chunk (LIMIT/OFFSET, urut kolom pertama) lalu
// menormalkan setiap baris ke kolom tabel logis.
func fetchTable(ctx context.Context, conn *db.Connector, physical, logical string, batchSize int, logger *zap.Logger) ([]Row, error) {
	var rows []Row
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var batch []map[string]interface{}
		err := conn.DB.WithContext(ctx).
			Table(physical).
			Order("1").
			Limit(batchSize).
			Offset(offset).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("read %s (offset %d): %w", physical, offset, err)
		}

		for _, raw := range batch {
			row, err := NormalizeRow(logical, raw)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		logger.Debug("Fetched batch", zap.String("table", physical), zap.Int("offset", offset), zap.Int("rows", len(batch)))

		if len(batch) < batchSize {
			break
		}
	}
	return rows, nil
}
