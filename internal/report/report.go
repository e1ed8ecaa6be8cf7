// internal/report/report.go
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/cleanup"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/validation"
)

// QualityReport menggabungkan validasi awal, hasil cleanup, dan validasi akhir.
type QualityReport struct {
	ID                string             `json:"id"`
	GeneratedAt       time.Time          `json:"generated_at"`
	ValidationResults *validation.Report `json:"validation_results"`
	CleanupResults    *cleanup.Report    `json:"cleanup_results"`
	// CleanupError diisi jika sebagian remediasi gagal; hasil cleanup tetap dilaporkan.
	CleanupError    string             `json:"cleanup_error,omitempty"`
	FinalValidation *validation.Report `json:"final_validation"`
}

// Validator dan Cleaner adalah bagian yang dikomposisikan builder.
type Validator interface {
	ValidateAll(ctx context.Context) (*validation.Report, error)
}

type Cleaner interface {
	CleanupInvalidData(ctx context.Context) (*cleanup.Report, error)
}

type Builder struct {
	validator Validator
	cleaner   Cleaner
	metrics   *metrics.Store
	logger    *zap.Logger
	now       func() time.Time
}

func NewBuilder(v Validator, c Cleaner, metricsStore *metrics.Store, logger *zap.Logger) *Builder {
	return &Builder{
		validator: v,
		cleaner:   c,
		metrics:   metricsStore,
		logger:    logger.Named("report"),
		now:       time.Now,
	}
}

// Generate: validasi, cleanup, validasi ulang. Tidak ada aturan baru di sini.
func (b *Builder) Generate(ctx context.Context) (*QualityReport, error) {
	r := &QualityReport{
		ID:          uuid.NewString(),
		GeneratedAt: b.now(),
	}

	initial, err := b.validator.ValidateAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial validation: %w", err)
	}
	r.ValidationResults = initial

	cleaned, err := b.cleaner.CleanupInvalidData(ctx)
	if cleaned == nil && err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	r.CleanupResults = cleaned
	if err != nil {
		r.CleanupError = err.Error()
		b.logger.Warn("Cleanup finished with failures, continuing with final validation", zap.Error(err))
	}

	final, err := b.validator.ValidateAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("final validation: %w", err)
	}
	r.FinalValidation = final

	result := "invalid"
	if final.OverallValid {
		result = "valid"
	}
	if b.metrics != nil {
		b.metrics.ReportsGeneratedTotal.WithLabelValues(result).Inc()
	}
	b.logger.Info("Quality report generated",
		zap.String("report_id", r.ID),
		zap.Bool("initial_valid", initial.OverallValid),
		zap.Bool("final_valid", final.OverallValid))
	return r, nil
}
