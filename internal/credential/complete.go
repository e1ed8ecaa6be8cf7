package credential

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/source"
)

// Migrator adalah langkah pertama CompleteCredentialUpdate.
type Migrator interface {
	Migrate(ctx context.Context, src source.Source) (*migration.Log, error)
}

// CompleteSummary berisi hasil setiap langkah.
type CompleteSummary struct {
	Migration   *migration.Log     `json:"migration"`
	Update      *UpdateResult      `json:"update"`
	Defaults    *DefaultsResult    `json:"defaults"`
	Permissions *PermissionsResult `json:"permissions"`
	Validation  *ValidationResult  `json:"validation"`
}

// CompleteResult: Success=false berarti salah satu langkah gagal; Error berisi pesannya
// dan Log berisi semua baris sampai titik gagal.
type CompleteResult struct {
	Success bool             `json:"success"`
	Result  *CompleteSummary `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
	Log     []string         `json:"log"`
}

// CompleteCredentialUpdate: migrasi, update kredensial, akun default, permission, validasi.
// Validasi yang menemukan masalah tetap Success=true; lihat Result.Validation.Valid.
func (m *Manager) CompleteCredentialUpdate(ctx context.Context, src source.Source) *CompleteResult {
	out := &CompleteResult{Log: []string{}}
	summary := &CompleteSummary{}

	fail := func(step string, err error) *CompleteResult {
		out.Error = fmt.Sprintf("%s: %v", step, err)
		out.Log = append(out.Log, "FAILED at "+step+": "+err.Error())
		m.logger.Error("Complete credential update failed", zap.String("step", step), zap.Error(err))
		return out
	}

	if m.migrator == nil {
		return fail("migration", errors.New("no migrator configured"))
	}
	migLog, err := m.migrator.Migrate(ctx, src)
	if migLog != nil {
		out.Log = append(out.Log, migLog.Lines...)
	}
	if err != nil {
		return fail("migration", err)
	}
	summary.Migration = migLog

	if summary.Update, err = m.UpdateExistingCredentials(ctx); err != nil {
		return fail("credential update", err)
	}
	out.Log = append(out.Log, summary.Update.Log...)

	if summary.Defaults, err = m.CreateDefaultAccounts(ctx); err != nil {
		return fail("default accounts", err)
	}
	out.Log = append(out.Log, summary.Defaults.Log...)

	if summary.Permissions, err = m.SetupPermissions(ctx); err != nil {
		return fail("permissions", err)
	}
	out.Log = append(out.Log, summary.Permissions.Log...)

	if summary.Validation, err = m.ValidateCredentials(ctx); err != nil {
		return fail("validation", err)
	}
	status := "VALID"
	if !summary.Validation.Valid {
		status = "INVALID"
	}
	out.Log = append(out.Log, fmt.Sprintf("Credential validation: %d users, %d issues (%s)",
		summary.Validation.TotalUsers, len(summary.Validation.Issues), status))

	out.Success = true
	out.Result = summary
	return out
}
