package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/integrity"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/model"
)

// Remedy adalah tindakan cleanup untuk sebuah finding.
type Remedy string

const (
	RemedyDelete    Remedy = "delete"
	RemedyNormalize Remedy = "normalize"
	RemedyNullify   Remedy = "nullify"
	RemedyOrphan    Remedy = "orphan"
)

// Kategori pelanggaran, dipakai juga sebagai kunci laporan cleanup.
const (
	CategoryMissingRequired     = "missing_required_fields"
	CategoryInvalidFormat       = "invalid_format"
	CategoryInvalidPhone        = "invalid_phone"
	CategoryInvalidGender       = "invalid_gender"
	CategoryInvalidStatus       = "invalid_status"
	CategoryInvalidQuantity     = "invalid_quantity"
	CategoryOrphanedItems       = "orphaned_items"
	CategoryOrphanedShipments   = "orphaned_shipments"
	CategoryOrphanedDetails     = "orphaned_details"
	CategoryDanglingAccountLink = "dangling_account_link"
)

// Finding adalah satu pelanggaran aturan pada satu record.
type Finding struct {
	Table    string `json:"table"`
	Key      string `json:"key"`
	KeyValue string `json:"key_value"`
	Field    string `json:"field"`
	Rule     string `json:"rule"`
	Category string `json:"category"`
	Remedy   Remedy `json:"remedy"`
	Message  string `json:"message"`
	Value    string `json:"value,omitempty"`
}

// Issue adalah teks yang ditampilkan ke operator.
func (f Finding) Issue() string {
	return fmt.Sprintf("%s[%s=%s]: %s", f.Table, f.Key, f.KeyValue, f.Message)
}

type TableResult struct {
	Valid        bool     `json:"valid"`
	TotalRecords int64    `json:"total_records"`
	Issues       []string `json:"issues"`
}

type Report struct {
	PerTable     map[string]TableResult `json:"per_table"`
	OverallValid bool                   `json:"overall_valid"`
	Log          []string               `json:"log"`
	Findings     []Finding              `json:"findings"`
}

// Validator menjalankan rule set per tabel dan cek referensi lewat integrity verifier.
type Validator struct {
	db        *gorm.DB
	rules     *RuleSet
	verifier  *integrity.Verifier
	batchSize int
	metrics   *metrics.Store
	logger    *zap.Logger
}

func NewValidator(conn *db.Connector, rules *RuleSet, verifier *integrity.Verifier, batchSize int, metricsStore *metrics.Store, logger *zap.Logger) *Validator {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Validator{
		db:        conn.DB,
		rules:     rules,
		verifier:  verifier,
		batchSize: batchSize,
		metrics:   metricsStore,
		logger:    logger.Named("validation"),
	}
}

// Rules mengembalikan rule set yang dipakai (cleanup memakai normalisasinya).
func (v *Validator) Rules() *RuleSet { return v.rules }

// ValidateAll memvalidasi semua tabel data. Data yang tidak valid bukan error;
// error hanya untuk kegagalan database.
func (v *Validator) ValidateAll(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		PerTable:     make(map[string]TableResult, len(model.DataTables)),
		OverallValid: true,
		Log:          []string{},
		Findings:     []Finding{},
	}

	for _, t := range model.DataTables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		total, findings, err := v.validateTable(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", t.Name, err)
		}

		refs, err := v.referenceFindings(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		findings = append(findings, refs...)

		res := TableResult{Valid: len(findings) == 0, TotalRecords: total, Issues: make([]string, 0, len(findings))}
		for _, f := range findings {
			res.Issues = append(res.Issues, f.Issue())
		}
		report.PerTable[t.Name] = res
		report.Findings = append(report.Findings, findings...)
		report.OverallValid = report.OverallValid && res.Valid

		status := "VALID"
		if !res.Valid {
			status = "INVALID"
		}
		report.Log = append(report.Log, fmt.Sprintf("%s: %d records, %d issues (%s)", t.Name, total, len(findings), status))
		if v.metrics != nil {
			v.metrics.ValidationIssues.WithLabelValues(t.Name).Set(float64(len(findings)))
		}
	}

	overall := "VALID"
	if !report.OverallValid {
		overall = "INVALID"
	}
	report.Log = append(report.Log, "Overall: "+overall)
	v.logger.Info("Validation finished",
		zap.Bool("overall_valid", report.OverallValid),
		zap.Int("findings", len(report.Findings)),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

func (v *Validator) validateTable(ctx context.Context, t model.TableInfo) (int64, []Finding, error) {
	switch t.Name {
	case model.TableKategori:
		return scanTable[model.Kategori](ctx, v, t.PrimaryKey)
	case model.TableBarang:
		return scanTable[model.Barang](ctx, v, t.PrimaryKey)
	case model.TablePelanggan:
		return scanTable[model.Pelanggan](ctx, v, t.PrimaryKey)
	case model.TableKurir:
		return scanTable[model.Kurir](ctx, v, t.PrimaryKey)
	case model.TablePengiriman:
		return scanTable[model.Pengiriman](ctx, v, t.PrimaryKey)
	case model.TableDetailPengiriman:
		return scanTable[model.DetailPengiriman](ctx, v, t.PrimaryKey)
	default:
		return 0, nil, fmt.Errorf("no rule set for table %s", t.Name)
	}
}

// scanTable membaca tabel per batch dan menjalankan rule set pada setiap record.
func scanTable[T model.Record](ctx context.Context, v *Validator, keyColumn string) (int64, []Finding, error) {
	var (
		batch    []T
		total    int64
		findings []Finding
	)
	res := v.db.WithContext(ctx).FindInBatches(&batch, v.batchSize, func(tx *gorm.DB, _ int) error {
		for _, rec := range batch {
			total++
			findings = append(findings, v.recordFindings(rec, keyColumn)...)
		}
		return nil
	})
	if res.Error != nil {
		return 0, nil, res.Error
	}
	return total, findings, nil
}

func (v *Validator) recordFindings(rec model.Record, keyColumn string) []Finding {
	err := v.rules.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: bug pemanggil, bukan data
		v.logger.Error("Validator rejected record type", zap.String("table", rec.TableName()), zap.Error(err))
		return nil
	}

	out := make([]Finding, 0, len(verrs))
	for _, fe := range verrs {
		category, remedy := classify(rec.TableName(), fe)
		out = append(out, Finding{
			Table:    rec.TableName(),
			Key:      keyColumn,
			KeyValue: rec.Key(),
			Field:    fe.Field(),
			Rule:     fe.Tag(),
			Category: category,
			Remedy:   remedy,
			Message:  describe(fe),
			Value:    valueString(fe.Value()),
		})
	}
	return out
}

func classify(table string, fe validator.FieldError) (string, Remedy) {
	switch fe.Tag() {
	case "required":
		return CategoryMissingRequired, RemedyDelete
	case "phone":
		return CategoryInvalidPhone, RemedyNormalize
	case "gt":
		return CategoryInvalidQuantity, RemedyDelete
	case "oneof":
		switch {
		case table == model.TableKurir && fe.Field() == "jenis_kelamin":
			return CategoryInvalidGender, RemedyNormalize
		case table == model.TablePengiriman && fe.Field() == "status":
			return CategoryInvalidStatus, RemedyDelete
		}
	}
	return CategoryInvalidFormat, RemedyDelete
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s exceeds max length %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %s", fe.Field(), fe.Param(), valueString(fe.Value()))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %s", fe.Field(), fe.Param(), valueString(fe.Value()))
	case "phone":
		return fmt.Sprintf("%s %q is not a valid phone number", fe.Field(), valueString(fe.Value()))
	case "shipno":
		return fmt.Sprintf("%s %q does not match <AAA><YYYYMMDD><NNN>", fe.Field(), valueString(fe.Value()))
	default:
		return fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag())
	}
}

func valueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format("2006-01-02")
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// referenceFindings mengubah orphan dari setiap relasi tabel menjadi finding.
func (v *Validator) referenceFindings(ctx context.Context, table string) ([]Finding, error) {
	var out []Finding
	for _, rel := range model.RelationsOf(table) {
		orphans, err := v.verifier.FindOrphans(ctx, rel)
		if err != nil {
			return nil, err
		}
		category, remedy := RelationCategory(rel)
		for _, o := range orphans {
			out = append(out, Finding{
				Table:    rel.Child,
				Key:      rel.ChildKey,
				KeyValue: o.ChildKey,
				Field:    rel.ForeignKey,
				Rule:     "exists",
				Category: category,
				Remedy:   remedy,
				Message:  fmt.Sprintf("%s %q does not exist in %s", rel.ForeignKey, o.ForeignKey, rel.Parent),
				Value:    o.ForeignKey,
			})
		}
	}
	return out, nil
}

// RelationCategory memetakan relasi ke kategori cleanup.
func RelationCategory(rel model.Relation) (string, Remedy) {
	if rel.Optional {
		return CategoryDanglingAccountLink, RemedyNullify
	}
	switch rel.Child {
	case model.TableBarang:
		return CategoryOrphanedItems, RemedyOrphan
	case model.TablePengiriman:
		return CategoryOrphanedShipments, RemedyOrphan
	default:
		return CategoryOrphanedDetails, RemedyOrphan
	}
}
