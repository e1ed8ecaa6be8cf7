package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/validation"
)

const fileTimeLayout = "2006-01-02_15-04-05"

// Store menulis laporan ke REPORTS_DIR sebagai .json dan .txt (opsional .xlsx).
type Store struct {
	dir    string
	xlsx   bool
	logger *zap.Logger
}

func NewStore(dir string, xlsx bool, logger *zap.Logger) *Store {
	return &Store{dir: dir, xlsx: xlsx, logger: logger.Named("report_store")}
}

// BaseName: data_quality_report_<timestamp>_<8 karakter awal id>, tanpa ekstensi.
// Potongan id membedakan laporan yang dibuat pada detik yang sama.
func BaseName(r *QualityReport) string {
	name := "data_quality_report_" + r.GeneratedAt.Format(fileTimeLayout)
	if id := strings.ReplaceAll(r.ID, "-", ""); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		name += "_" + id
	}
	return name
}

// Save menulis semua format. File yang berhasil tetap dikembalikan walau format lain gagal.
func (s *Store) Save(r *QualityReport) ([]string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir %s: %w", s.dir, err)
	}
	base := filepath.Join(s.dir, BaseName(r))

	var (
		paths []string
		errs  error
	)
	write := func(path string, fn func(string) error) {
		if err := fn(path); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("write %s: %w", filepath.Base(path), err))
			return
		}
		paths = append(paths, path)
	}

	write(base+".json", func(path string) error {
		data, err := RenderJSON(r)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	})
	write(base+".txt", func(path string) error {
		return os.WriteFile(path, []byte(RenderText(r)), 0o644)
	})
	if s.xlsx {
		write(base+".xlsx", func(path string) error { return writeXLSX(r, path) })
	}

	if errs != nil {
		s.logger.Error("Failed to persist some report files", zap.Error(errs), zap.Strings("written", paths))
	} else {
		s.logger.Info("Quality report saved", zap.Strings("files", paths))
	}
	return paths, errs
}

// writeXLSX: sheet Summary (status per tabel), Issues (semua finding), Cleanup (jumlah per kategori).
func writeXLSX(r *QualityReport, path string) (err error) {
	f := excelize.NewFile()
	defer func() { err = multierr.Append(err, f.Close()) }()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	var errs error
	errs = multierr.Append(errs, setRow(f, summary, 1, "Table", "Initial Valid", "Initial Records", "Initial Issues", "Final Valid", "Final Records", "Final Issues"))
	row := 2
	for _, t := range model.DataTables {
		var cells []interface{}
		cells = append(cells, t.Name)
		for _, v := range []*validationView{viewOf(r.ValidationResults, t.Name), viewOf(r.FinalValidation, t.Name)} {
			cells = append(cells, v.valid, v.records, v.issues)
		}
		errs = multierr.Append(errs, setRow(f, summary, row, cells...))
		row++
	}

	const issues = "Issues"
	if _, err := f.NewSheet(issues); err != nil {
		return err
	}
	errs = multierr.Append(errs, setRow(f, issues, 1, "Table", "Key", "Key Value", "Field", "Rule", "Category", "Remedy", "Message"))
	if r.ValidationResults != nil {
		for i, fd := range r.ValidationResults.Findings {
			errs = multierr.Append(errs, setRow(f, issues, i+2, fd.Table, fd.Key, fd.KeyValue, fd.Field, fd.Rule, fd.Category, string(fd.Remedy), fd.Message))
		}
	}

	const cleanupSheet = "Cleanup"
	if _, err := f.NewSheet(cleanupSheet); err != nil {
		return err
	}
	errs = multierr.Append(errs, setRow(f, cleanupSheet, 1, "Category", "Action", "Count"))
	if r.CleanupResults != nil {
		row = 2
		for _, category := range sortedKeys(r.CleanupResults.PerCategory) {
			actions := r.CleanupResults.PerCategory[category]
			for _, action := range sortedKeys(actions) {
				errs = multierr.Append(errs, setRow(f, cleanupSheet, row, category, action, actions[action]))
				row++
			}
		}
	}
	if errs != nil {
		return fmt.Errorf("fill worksheet: %w", errs)
	}

	return f.SaveAs(path)
}

type validationView struct {
	valid   interface{}
	records interface{}
	issues  interface{}
}

func viewOf(v *validation.Report, table string) *validationView {
	if v == nil {
		return &validationView{valid: "-", records: "-", issues: "-"}
	}
	res, ok := v.PerTable[table]
	if !ok {
		return &validationView{valid: "-", records: "-", issues: "-"}
	}
	return &validationView{valid: validWord(res.Valid), records: res.TotalRecords, issues: len(res.Issues)}
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	var errs error
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, f.SetCellValue(sheet, cell, v))
	}
	return errs
}
