// internal/cleanup/cleanup.go
package cleanup

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/integrity"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/utils"
	"github.com/arwahdevops/shipmigrate/internal/validation"
)

// Aksi yang dicatat per kategori.
const (
	ActionDeleted  = "deleted"
	ActionRepaired = "repaired"
	ActionNulled   = "nulled"
	ActionFailed   = "failed"
	cascadePrefix  = "cascade_"
)

// Report: jumlah record per kategori pelanggaran dan per aksi, plus log operator.
type Report struct {
	PerCategory map[string]map[string]int `json:"per_category"`
	Log         []string                  `json:"log"`
}

func newReport() *Report {
	return &Report{PerCategory: map[string]map[string]int{}, Log: []string{}}
}

func (r *Report) add(category, action string, n int) {
	if n == 0 {
		return
	}
	if r.PerCategory[category] == nil {
		r.PerCategory[category] = map[string]int{}
	}
	r.PerCategory[category][action] += n
}

func (r *Report) logf(format string, args ...interface{}) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// Cleaner menghapus atau memperbaiki data yang tidak bisa direkonsiliasi.
// Tidak pernah membuat baris induk pengganti.
type Cleaner struct {
	db        *gorm.DB
	dialect   string
	validator *validation.Validator
	verifier  *integrity.Verifier
	chunkSize int
	metrics   *metrics.Store
	logger    *zap.Logger
	now       func() time.Time
}

func NewCleaner(conn *db.Connector, v *validation.Validator, verifier *integrity.Verifier, chunkSize int, metricsStore *metrics.Store, logger *zap.Logger) *Cleaner {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Cleaner{
		db:        conn.DB,
		dialect:   conn.Dialect,
		validator: v,
		verifier:  verifier,
		chunkSize: chunkSize,
		metrics:   metricsStore,
		logger:    logger.Named("cleanup"),
		now:       time.Now,
	}
}

// group adalah satu remediasi: satu kategori pada satu tabel.
type group struct {
	table    string
	category string
	keys     []string
}

// CleanupInvalidData: perbaikan, lalu hapus record invalid (cascade eksplisit), lalu sapu orphan.
// Remediasi yang gagal dicatat dan dikumpulkan; report tetap dikembalikan bersama error.
func (c *Cleaner) CleanupInvalidData(ctx context.Context) (*Report, error) {
	report := newReport()

	findings, err := c.validator.ValidateAll(ctx)
	if err != nil {
		report.logf("FAILED to validate before cleanup: %v", err)
		return report, fmt.Errorf("validate before cleanup: %w", err)
	}
	report.logf("Starting cleanup: %d findings", len(findings.Findings))

	repairs, nullify, deletes := c.plan(findings.Findings)

	var errs error
	for _, g := range repairs {
		errs = multierr.Append(errs, c.repair(ctx, g, report, deletes))
	}
	for _, g := range nullify {
		errs = multierr.Append(errs, c.nullify(ctx, g, report))
	}
	for _, g := range orderGroups(deletes) {
		errs = multierr.Append(errs, c.deleteGroup(ctx, g, report))
	}
	errs = multierr.Append(errs, c.sweepOrphans(ctx, report))

	deleted, repaired, nulled := report.totals()
	report.logf("Cleanup completed: %d deleted, %d repaired, %d nulled", deleted, repaired, nulled)
	if errs != nil {
		report.logf("Cleanup finished with %d failed remediation(s)", len(multierr.Errors(errs)))
		c.logger.Error("Cleanup finished with errors", zap.Error(errs))
	} else {
		c.logger.Info("Cleanup finished", zap.Int("deleted", deleted), zap.Int("repaired", repaired), zap.Int("nulled", nulled))
	}
	return report, errs
}

// plan mengelompokkan finding per remedy. Record yang dihapus hanya masuk ke kategori pertamanya.
// Finding orphan tidak dipakai di sini: sapu orphan menghitung ulang lewat anti-join.
func (c *Cleaner) plan(findings []validation.Finding) (repairs []group, nullify []group, deletes map[string]*group) {
	deletes = map[string]*group{}
	seen := map[string]bool{} // table/key yang sudah dijadwalkan dihapus
	index := map[string]int{}

	addTo := func(list *[]group, f validation.Finding) {
		id := f.Table + "|" + f.Category
		i, ok := index[id]
		if !ok {
			*list = append(*list, group{table: f.Table, category: f.Category})
			i = len(*list) - 1
			index[id] = i
		}
		(*list)[i].keys = append((*list)[i].keys, f.KeyValue)
	}

	for _, f := range findings {
		if f.Remedy != validation.RemedyDelete || seen[f.Table+"|"+f.KeyValue] {
			continue
		}
		seen[f.Table+"|"+f.KeyValue] = true
		id := f.Table + "|" + f.Category
		if deletes[id] == nil {
			deletes[id] = &group{table: f.Table, category: f.Category}
		}
		deletes[id].keys = append(deletes[id].keys, f.KeyValue)
	}

	for _, f := range findings {
		switch f.Remedy {
		case validation.RemedyNormalize:
			if !seen[f.Table+"|"+f.KeyValue] {
				addTo(&repairs, f)
			}
		case validation.RemedyNullify:
			addTo(&nullify, f)
		}
	}
	return repairs, nullify, deletes
}

type keyValue struct {
	Key   string `gorm:"column:k"`
	Value string `gorm:"column:v"`
}

// repair menormalisasi field; record yang tidak bisa dinormalisasi dijadwalkan dihapus.
func (c *Cleaner) repair(ctx context.Context, g group, report *Report, deletes map[string]*group) error {
	pk := model.PrimaryKeyOf(g.table)
	field := repairField(g.category)
	if field == "" {
		return fmt.Errorf("no repair for category %s", g.category)
	}

	var rows []keyValue
	var unrepairable []string
	repaired := 0

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range utils.Chunk(g.keys, c.chunkSize) {
			rows = rows[:0]
			if err := tx.Table(g.table).
				Select(fmt.Sprintf("%s AS k, COALESCE(%s, '') AS v", c.q(pk), c.q(field))).
				Where(fmt.Sprintf("%s IN ?", c.q(pk)), keyArgs(g.table, chunk)).
				Scan(&rows).Error; err != nil {
				return err
			}
			for _, r := range rows {
				fixed, ok := c.normalize(g.category, r.Value)
				if !ok {
					unrepairable = append(unrepairable, r.Key)
					continue
				}
				if err := tx.Table(g.table).
					Where(fmt.Sprintf("%s = ?", c.q(pk)), r.Key).
					Updates(map[string]interface{}{field: fixed, "updated_at": c.now()}).Error; err != nil {
					return err
				}
				repaired++
			}
		}
		return nil
	})
	if err != nil {
		return c.failed(report, g, err)
	}

	report.add(g.category, ActionRepaired, repaired)
	c.count(g.category, ActionRepaired, repaired)
	if repaired > 0 {
		report.logf("Repaired %d %s record(s) in %s", repaired, g.category, g.table)
	}
	if len(unrepairable) > 0 {
		report.logf("%d %s record(s) in %s cannot be normalized, deleting", len(unrepairable), g.category, g.table)
		id := g.table + "|" + g.category
		if deletes[id] == nil {
			deletes[id] = &group{table: g.table, category: g.category}
		}
		deletes[id].keys = append(deletes[id].keys, unrepairable...)
	}
	return nil
}

func repairField(category string) string {
	switch category {
	case validation.CategoryInvalidPhone:
		return "telepon"
	case validation.CategoryInvalidGender:
		return "jenis_kelamin"
	}
	return ""
}

func (c *Cleaner) normalize(category, value string) (string, bool) {
	switch category {
	case validation.CategoryInvalidPhone:
		return c.validator.Rules().NormalizePhone(value)
	case validation.CategoryInvalidGender:
		return validation.NormalizeGender(value)
	}
	return "", false
}

// nullify mengosongkan tautan opsional yang menunjuk akun yang tidak ada.
func (c *Cleaner) nullify(ctx context.Context, g group, report *Report) error {
	rel, ok := relationForCategory(g.table, g.category)
	if !ok {
		return fmt.Errorf("no optional relation for %s on %s", g.category, g.table)
	}
	n, err := c.nullifyKeys(ctx, rel, g.keys)
	if err != nil {
		return c.failed(report, g, err)
	}
	report.add(g.category, ActionNulled, int(n))
	c.count(g.category, ActionNulled, int(n))
	if n > 0 {
		report.logf("Cleared %d dangling %s.%s link(s)", n, rel.Child, rel.ForeignKey)
	}
	return nil
}

func (c *Cleaner) nullifyKeys(ctx context.Context, rel model.Relation, keys []string) (int64, error) {
	var total int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range utils.Chunk(keys, c.chunkSize) {
			res := tx.Exec(fmt.Sprintf("UPDATE %s SET %s = NULL, %s = ? WHERE %s IN ?",
				c.q(rel.Child), c.q(rel.ForeignKey), c.q("updated_at"), c.q(rel.ChildKey)),
				c.now(), keyArgs(rel.Child, chunk))
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	return total, err
}

func relationForCategory(table, category string) (model.Relation, bool) {
	for _, rel := range model.RelationsOf(table) {
		if rel.Optional && category == validation.CategoryDanglingAccountLink {
			return rel, true
		}
	}
	return model.Relation{}, false
}

// deleteGroup menghapus satu kelompok record beserta turunannya dalam satu transaksi.
func (c *Cleaner) deleteGroup(ctx context.Context, g group, report *Report) error {
	affected := map[string]int64{}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return c.deleteCascade(tx, g.table, g.keys, affected)
	})
	if err != nil {
		return c.failed(report, g, err)
	}
	c.record(report, g.category, g.table, affected)
	return nil
}

// deleteCascade menghapus anak dulu (mengikuti relasi wajib), lalu record itu sendiri.
func (c *Cleaner) deleteCascade(tx *gorm.DB, table string, keys []string, affected map[string]int64) error {
	if len(keys) == 0 {
		return nil
	}
	pk := model.PrimaryKeyOf(table)

	for _, rel := range model.Relations() {
		if rel.Parent != table || rel.Optional {
			continue
		}
		var childKeys []string
		for _, chunk := range utils.Chunk(keys, c.chunkSize) {
			var ks []string
			if err := tx.Table(rel.Child).
				Where(fmt.Sprintf("%s IN ?", c.q(rel.ForeignKey)), chunk).
				Pluck(rel.ChildKey, &ks).Error; err != nil {
				return fmt.Errorf("collect %s children of %s: %w", rel.Child, table, err)
			}
			childKeys = append(childKeys, ks...)
		}
		if err := c.deleteCascade(tx, rel.Child, childKeys, affected); err != nil {
			return err
		}
	}

	for _, chunk := range utils.Chunk(keys, c.chunkSize) {
		res := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", c.q(table), c.q(pk)), keyArgs(table, chunk))
		if res.Error != nil {
			return fmt.Errorf("delete from %s: %w", table, res.Error)
		}
		affected[table] += res.RowsAffected
	}
	return nil
}

// sweepOrphans menjalankan anti-join per relasi, induk dulu. Cascade saat menghapus
// barang/pengiriman sudah membawa detail-nya, jadi satu putaran cukup.
func (c *Cleaner) sweepOrphans(ctx context.Context, report *Report) error {
	var errs error
	for _, rel := range model.Relations() {
		category, _ := validation.RelationCategory(rel)
		orphans, err := c.verifier.FindOrphans(ctx, rel)
		if err != nil {
			errs = multierr.Append(errs, c.failed(report, group{table: rel.Child, category: category}, err))
			continue
		}
		if len(orphans) == 0 {
			continue
		}
		keys := make([]string, 0, len(orphans))
		for _, o := range orphans {
			keys = append(keys, o.ChildKey)
		}

		if rel.Optional {
			errs = multierr.Append(errs, c.nullify(ctx, group{table: rel.Child, category: category, keys: keys}, report))
			continue
		}
		report.logf("Found %d orphan(s) for %s", len(keys), rel.Name)
		errs = multierr.Append(errs, c.deleteGroup(ctx, group{table: rel.Child, category: category, keys: keys}, report))
	}
	return errs
}

func (c *Cleaner) record(report *Report, category, table string, affected map[string]int64) {
	n := int(affected[table])
	report.add(category, ActionDeleted, n)
	c.count(category, ActionDeleted, n)

	line := fmt.Sprintf("Deleted %d %s record(s) from %s", n, category, table)
	for _, t := range model.DataTables {
		if t.Name == table || affected[t.Name] == 0 {
			continue
		}
		report.add(category, cascadePrefix+t.Name, int(affected[t.Name]))
		c.count(category, cascadePrefix+t.Name, int(affected[t.Name]))
		line += fmt.Sprintf(", cascaded %d from %s", affected[t.Name], t.Name)
	}
	report.Log = append(report.Log, line)
}

func (c *Cleaner) failed(report *Report, g group, err error) error {
	report.add(g.category, ActionFailed, len(g.keys))
	c.count(g.category, ActionFailed, len(g.keys))
	report.logf("FAILED %s on %s (%d record(s)): %v", g.category, g.table, len(g.keys), err)
	c.logger.Error("Remediation failed", zap.String("table", g.table), zap.String("category", g.category), zap.Error(err))
	return fmt.Errorf("%s on %s: %w", g.category, g.table, err)
}

func (c *Cleaner) count(category, action string, n int) {
	if c.metrics != nil && n > 0 {
		c.metrics.CleanupActionsTotal.WithLabelValues(category, action).Add(float64(n))
	}
}

func (c *Cleaner) q(name string) string { return utils.QuoteIdentifier(name, c.dialect) }

func (r *Report) totals() (deleted, repaired, nulled int) {
	for _, actions := range r.PerCategory {
		for action, n := range actions {
			switch {
			case action == ActionDeleted, strings.HasPrefix(action, cascadePrefix):
				deleted += n
			case action == ActionRepaired:
				repaired += n
			case action == ActionNulled:
				nulled += n
			}
		}
	}
	return deleted, repaired, nulled
}

// orderGroups: tabel induk dulu, lalu nama kategori, supaya hasil deterministik.
func orderGroups(groups map[string]*group) []group {
	var out []group
	for _, t := range model.DataTables {
		var names []string
		for _, g := range groups {
			if g.table == t.Name {
				names = append(names, g.category)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, *groups[t.Name+"|"+name])
		}
	}
	return out
}

// keyArgs: primary key detail_pengiriman berupa angka.
func keyArgs(table string, keys []string) interface{} {
	if model.PrimaryKeyOf(table) != "id" {
		return keys
	}
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
