// internal/integrity/verifier.go
package integrity

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/utils"
)

// Report adalah hasil verifikasi integritas referensial.
type Report struct {
	Counts   map[string]int64 `json:"counts"`
	Orphans  map[string]int64 `json:"orphans"`
	AllValid bool             `json:"all_valid"`
}

// Orphan adalah satu baris child yang foreign key-nya tidak menunjuk induk mana pun.
type Orphan struct {
	ChildKey   string `gorm:"column:child_key"`
	ForeignKey string `gorm:"column:foreign_key"`
}

// Verifier menghitung baris dan orphan. Tidak pernah mengubah data.
type Verifier struct {
	db      *gorm.DB
	dialect string
	metrics *metrics.Store
	logger  *zap.Logger
}

func NewVerifier(conn *db.Connector, metricsStore *metrics.Store, logger *zap.Logger) *Verifier {
	return &Verifier{
		db:      conn.DB,
		dialect: conn.Dialect,
		metrics: metricsStore,
		logger:  logger.Named("integrity"),
	}
}

// Verify menghitung baris setiap tabel dan orphan setiap relasi.
func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	report := &Report{
		Counts:   make(map[string]int64, len(model.AllTables)),
		Orphans:  make(map[string]int64),
		AllValid: true,
	}

	for _, t := range model.AllTables {
		var n int64
		if err := v.db.WithContext(ctx).Table(t.Name).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count rows in %s: %w", t.Name, err)
		}
		report.Counts[t.Name] = n
	}

	for _, rel := range model.Relations() {
		n, err := v.CountOrphans(ctx, rel)
		if err != nil {
			return nil, err
		}
		report.Orphans[rel.Name] = n
		if v.metrics != nil {
			v.metrics.OrphanRecords.WithLabelValues(rel.Name).Set(float64(n))
		}
		if n > 0 {
			report.AllValid = false
			v.logger.Warn("Orphan records found", zap.String("relation", rel.Name), zap.Int64("count", n))
		}
	}

	v.logger.Info("Integrity check finished", zap.Bool("all_valid", report.AllValid))
	return report, nil
}

// CountOrphans menghitung orphan untuk satu relasi.
func (v *Verifier) CountOrphans(ctx context.Context, rel model.Relation) (int64, error) {
	var n int64
	if err := v.orphanQuery(ctx, rel).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count orphans for %s: %w", rel.Name, err)
	}
	return n, nil
}

// FindOrphans mengembalikan key child dan nilai foreign key untuk setiap orphan,
// terurut berdasarkan key child.
func (v *Verifier) FindOrphans(ctx context.Context, rel model.Relation) ([]Orphan, error) {
	childKey := utils.QuoteQualified("c", rel.ChildKey, v.dialect)
	fk := utils.QuoteQualified("c", rel.ForeignKey, v.dialect)

	var orphans []Orphan
	err := v.orphanQuery(ctx, rel).
		Select(fmt.Sprintf("%s AS child_key, COALESCE(%s, '') AS foreign_key", childKey, fk)).
		Order(childKey).
		Scan(&orphans).Error
	if err != nil {
		return nil, fmt.Errorf("find orphans for %s: %w", rel.Name, err)
	}
	return orphans, nil
}

// orphanQuery: child LEFT JOIN parent ON fk = pk WHERE pk IS NULL.
func (v *Verifier) orphanQuery(ctx context.Context, rel model.Relation) *gorm.DB {
	q := func(name string) string { return utils.QuoteIdentifier(name, v.dialect) }
	fk := utils.QuoteQualified("c", rel.ForeignKey, v.dialect)
	pk := utils.QuoteQualified("p", rel.ParentKey, v.dialect)

	tx := v.db.WithContext(ctx).
		Table(fmt.Sprintf("%s AS c", q(rel.Child))).
		Joins(fmt.Sprintf("LEFT JOIN %s AS p ON %s = %s", q(rel.Parent), fk, pk)).
		Where(fmt.Sprintf("%s IS NULL", pk))
	if rel.Optional {
		tx = tx.Where(fmt.Sprintf("%s IS NOT NULL AND %s <> ''", fk, fk))
	}
	return tx
}
