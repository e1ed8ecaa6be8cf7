package migration

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/source"
	"github.com/arwahdevops/shipmigrate/internal/utils"
)

// Writer menyisipkan baris hanya jika kuncinya belum ada.
type Writer struct {
	db      *gorm.DB
	dialect string
}

func NewWriter(conn *db.Connector) *Writer {
	return &Writer{db: conn.DB, dialect: conn.Dialect}
}

// UpsertIfAbsent menyisipkan row jika belum ada baris dengan pkField yang sama.
// Mengembalikan true jika baris baru disisipkan. Baris yang sudah ada tidak diubah.
func (w *Writer) UpsertIfAbsent(ctx context.Context, table, pkField string, row source.Row) (bool, error) {
	return w.insertIfAbsent(ctx, table, pkField, []string{pkField}, false, row)
}

// upsertDescriptor memilih kunci keberadaan: primary key jika terisi, selain itu natural key.
// Hanya descriptor dengan NaturalKey yang dianggap punya primary key auto-increment.
func (w *Writer) upsertDescriptor(ctx context.Context, d TableDescriptor, row source.Row) (bool, error) {
	autoIncrement := len(d.NaturalKey) > 0
	keys := []string{d.PrimaryKey}
	if row[d.PrimaryKey] == nil && autoIncrement {
		keys = d.NaturalKey
	}
	return w.insertIfAbsent(ctx, d.Name, d.PrimaryKey, keys, autoIncrement, row)
}

func (w *Writer) insertIfAbsent(ctx context.Context, table, pkField string, keys []string, autoIncrement bool, row source.Row) (bool, error) {
	values := make(map[string]interface{}, len(row))
	for k, v := range row {
		values[k] = v
	}
	if _, ok := values[pkField]; !ok {
		values[pkField] = nil
	}
	// id auto-increment kosong: biarkan database yang mengisi
	if autoIncrement && values[pkField] == nil {
		delete(values, pkField)
	}

	var keyCols []string
	for _, k := range keys {
		if _, ok := values[k]; ok {
			keyCols = append(keyCols, k)
		}
	}

	inserted := false
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(keyCols) > 0 {
			q := tx.Table(table)
			for _, k := range keyCols {
				col := utils.QuoteIdentifier(k, w.dialect)
				if values[k] == nil {
					q = q.Where(col + " IS NULL")
					continue
				}
				q = q.Where(fmt.Sprintf("%s = ?", col), values[k])
			}
			var n int64
			if err := q.Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return nil
			}
		}
		if err := tx.Table(table).Create(values).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, &WriteError{Table: table, Key: describeKey(keys, row), Err: err}
	}
	return inserted, nil
}

func describeKey(keys []string, row source.Row) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprint(row[k]))
	}
	return strings.Join(parts, "/")
}
