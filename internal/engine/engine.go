// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/cleanup"
	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/credential"
	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/integrity"
	"github.com/arwahdevops/shipmigrate/internal/logger"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/report"
	"github.com/arwahdevops/shipmigrate/internal/runlock"
	"github.com/arwahdevops/shipmigrate/internal/secrets"
	"github.com/arwahdevops/shipmigrate/internal/source"
	"github.com/arwahdevops/shipmigrate/internal/validation"
)

// Satu lock untuk semua operasi mutasi terhadap database tujuan yang sama.
const lockName = "mutation"

// MigrateRequest memilih source untuk Migrate dan CompleteCredentialUpdate.
type MigrateRequest struct {
	Source   string `json:"source"`
	Database string `json:"database,omitempty"` // old-db
	File     string `json:"file,omitempty"`     // sql-dump
}

// Engine adalah fasad yang dipakai CLI dan HTTP. Semua operasi mutasi dijaga run lock.
type Engine struct {
	cfg     *config.Config
	dst     *db.Connector
	dial    source.Dialer
	locker  runlock.Locker
	metrics *metrics.Store
	logger  *zap.Logger

	migrator    *migration.Migrator
	verifier    *integrity.Verifier
	validator   *validation.Validator
	cleaner     *cleanup.Cleaner
	reports     *report.Builder
	reportStore *report.Store
	credentials *credential.Manager
}

// Deps adalah dependensi yang sudah jadi; dipakai New dan oleh test.
type Deps struct {
	Dst     *db.Connector
	Dial    source.Dialer  // nil = source old-db tidak tersedia
	Locker  runlock.Locker // nil = runlock.Noop
	Metrics *metrics.Store // nil = store baru
	Logger  *zap.Logger    // nil = zap.NewNop
}

// New membaca kredensial (env atau Vault), menghubungkan database tujuan dengan retry,
// dan menyiapkan run lock.
func New(ctx context.Context, cfg *config.Config, metricsStore *metrics.Store, baseLogger *zap.Logger) (*Engine, error) {
	log := baseLogger.Named("engine")

	managers, err := secretManagers(cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	dstCreds, err := secrets.Resolve(ctx, secrets.Lookup{
		Label:       "destination",
		EnvPrefix:   "DST",
		User:        cfg.DstDB.User,
		Password:    cfg.DstDB.Password,
		SecretPath:  cfg.DstSecretPath,
		UsernameKey: cfg.DstUsernameKey,
		PasswordKey: cfg.DstPasswordKey,
	}, managers, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("load destination DB credentials: %w", err)
	}

	retry := db.RetryOptions{
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval,
		PoolSize:      cfg.ConnPoolSize,
		MaxLifetime:   cfg.ConnMaxLifetime,
	}
	dst, err := db.ConnectWithRetry(ctx, cfg.DstDB, dstCreds.Username, dstCreds.Password, retry,
		"destination", logger.NewGormLogger(baseLogger, cfg.DebugMode), metricsStore, baseLogger)
	if err != nil {
		return nil, err
	}

	locker, err := runlock.New(ctx, runlock.Config{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		TTL:       cfg.RunLockTTL,
		Namespace: fmt.Sprintf("%s/%s:%d/%s", cfg.DstDB.Dialect, cfg.DstDB.Host, cfg.DstDB.Port, cfg.DstDB.DBName),
	}, baseLogger)
	if err != nil {
		_ = dst.Close()
		return nil, err
	}

	var dial source.Dialer
	if cfg.LegacyDB.Enabled() {
		dial = legacyDialer(cfg, managers, retry, metricsStore, baseLogger)
	} else {
		log.Debug("LEGACY_DIALECT not set, old-db source disabled")
	}

	return NewWithDeps(cfg, Deps{Dst: dst, Dial: dial, Locker: locker, Metrics: metricsStore, Logger: baseLogger})
}

// NewWithDeps merakit engine di atas koneksi yang sudah ada.
func NewWithDeps(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Dst == nil {
		return nil, fmt.Errorf("destination connection is nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetricsStore()
	}
	if deps.Locker == nil {
		deps.Locker = runlock.Noop{}
	}

	rules, err := validation.NewRuleSet(cfg.PhoneRegion)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		dst:     deps.Dst,
		dial:    deps.Dial,
		locker:  deps.Locker,
		metrics: deps.Metrics,
		logger:  deps.Logger.Named("engine"),
	}
	e.migrator = migration.NewMigrator(deps.Dst, migration.Options{
		CourierPassword: cfg.DefaultCourierPassword,
		BcryptCost:      cfg.BcryptCost,
	}, deps.Metrics, deps.Logger)
	e.verifier = integrity.NewVerifier(deps.Dst, deps.Metrics, deps.Logger)
	e.validator = validation.NewValidator(deps.Dst, rules, e.verifier, cfg.BatchSize, deps.Metrics, deps.Logger)
	e.cleaner = cleanup.NewCleaner(deps.Dst, e.validator, e.verifier, cfg.BatchSize, deps.Metrics, deps.Logger)
	e.reports = report.NewBuilder(e.validator, e.cleaner, deps.Metrics, deps.Logger)
	e.reportStore = report.NewStore(cfg.ReportsDir, cfg.ReportXLSX, deps.Logger)
	e.credentials = credential.NewManager(deps.Dst, credential.Options{
		AdminPassword:     cfg.DefaultAdminPassword,
		CourierPassword:   cfg.DefaultCourierPassword,
		WarehousePassword: cfg.DefaultWarehousePassword,
		BcryptCost:        cfg.BcryptCost,
		ForceReset:        cfg.ForcePasswordReset,
	}, e.migrator, deps.Metrics, deps.Logger)

	if cfg.ForcePasswordReset {
		e.logger.Warn("FORCE_PASSWORD_RESET is on: accounts reset to a default password must change it at next login")
	}
	return e, nil
}

func secretManagers(cfg *config.Config, baseLogger *zap.Logger) ([]secrets.SecretManager, error) {
	vaultMgr, err := secrets.NewVaultManager(cfg, baseLogger)
	if err != nil {
		if cfg.VaultEnabled {
			return nil, fmt.Errorf("initialize Vault secret manager: %w", err)
		}
		baseLogger.Warn("Could not initialize Vault secret manager", zap.Error(err))
	}
	managers := make([]secrets.SecretManager, 0, 1)
	if vaultMgr != nil && vaultMgr.IsEnabled() {
		managers = append(managers, vaultMgr)
	}
	return managers, nil
}

// legacyDialer membuka database legacy (LEGACY_*) setiap kali source old-db diminta.
func legacyDialer(cfg *config.Config, managers []secrets.SecretManager, retry db.RetryOptions, metricsStore *metrics.Store, baseLogger *zap.Logger) source.Dialer {
	return func(ctx context.Context, database string) (*db.Connector, error) {
		dbCfg := cfg.LegacyDB.AsDatabaseConfig(database)
		creds, err := secrets.Resolve(ctx, secrets.Lookup{
			Label:       "legacy",
			EnvPrefix:   "LEGACY",
			User:        dbCfg.User,
			Password:    dbCfg.Password,
			SecretPath:  cfg.LegacySecretPath,
			UsernameKey: cfg.LegacyUsernameKey,
			PasswordKey: cfg.LegacyPasswordKey,
		}, managers, baseLogger)
		if err != nil {
			return nil, fmt.Errorf("load legacy DB credentials: %w", err)
		}
		return db.ConnectWithRetry(ctx, dbCfg, creds.Username, creds.Password, retry,
			"legacy", logger.NewGormLogger(baseLogger, cfg.DebugMode), metricsStore, baseLogger)
	}
}

// run membungkus satu operasi: run lock (jika mutate), metrik running/durasi, dan log.
func (e *Engine) run(ctx context.Context, op string, mutate bool, fn func(ctx context.Context) error) (err error) {
	if mutate {
		release, lockErr := e.locker.Acquire(ctx, lockName)
		if lockErr != nil {
			e.metrics.OperationDuration.WithLabelValues(op, "locked").Observe(0)
			return lockErr
		}
		defer release()
	}

	start := time.Now()
	e.metrics.OperationRunning.WithLabelValues(op).Set(1)
	e.logger.Info("Operation started", zap.String("operation", op))
	defer func() {
		e.metrics.OperationRunning.WithLabelValues(op).Set(0)
		status := "success"
		if err != nil {
			status = "failure"
		}
		e.metrics.OperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
		e.logger.Info("Operation finished",
			zap.String("operation", op),
			zap.String("status", status),
			zap.Duration("duration", time.Since(start)))
	}()
	return fn(ctx)
}

func (e *Engine) openSource(ctx context.Context, req MigrateRequest) (source.Source, error) {
	kind, err := source.ParseKind(req.Source)
	if err != nil {
		return nil, err
	}
	return source.Open(ctx, source.Config{
		Kind:         kind,
		Database:     req.Database,
		File:         req.File,
		BackupSuffix: e.cfg.BackupSuffix,
		BatchSize:    e.cfg.BatchSize,
	}, e.dst, e.dial, e.logger)
}

// Migrate membuka source, menjalankan migrasi, lalu menutup source. Source yang gagal
// dibuka tetap dilaporkan sebagai *migration.MigrationError dengan log berisi satu baris.
func (e *Engine) Migrate(ctx context.Context, req MigrateRequest) (*migration.Log, error) {
	var out *migration.Log
	err := e.run(ctx, "migrate", true, func(ctx context.Context) error {
		src, err := e.openSource(ctx, req)
		if err != nil {
			out = migration.NewLog()
			out.Add("FAILED at source: %v", err)
			return &migration.MigrationError{Log: out, Err: err}
		}
		defer func() {
			if cerr := src.Close(); cerr != nil {
				e.logger.Warn("Failed to close source", zap.Error(cerr))
			}
		}()
		out, err = e.migrator.Migrate(ctx, src)
		return err
	})
	return out, err
}

func (e *Engine) VerifyIntegrity(ctx context.Context) (*integrity.Report, error) {
	var out *integrity.Report
	err := e.run(ctx, "verify", false, func(ctx context.Context) (err error) {
		out, err = e.verifier.Verify(ctx)
		return err
	})
	return out, err
}

func (e *Engine) ValidateData(ctx context.Context) (*validation.Report, error) {
	var out *validation.Report
	err := e.run(ctx, "validate", false, func(ctx context.Context) (err error) {
		out, err = e.validator.ValidateAll(ctx)
		return err
	})
	return out, err
}

// CleanupData bisa mengembalikan report dan error sekaligus (remediasi sebagian gagal).
func (e *Engine) CleanupData(ctx context.Context) (*cleanup.Report, error) {
	var out *cleanup.Report
	err := e.run(ctx, "cleanup", true, func(ctx context.Context) (err error) {
		out, err = e.cleaner.CleanupInvalidData(ctx)
		return err
	})
	return out, err
}

// GenerateQualityReport menjalankan validasi-cleanup-validasi lalu menyimpan file report.
// Path file yang berhasil ditulis dikembalikan walaupun sebagian penulisan gagal.
func (e *Engine) GenerateQualityReport(ctx context.Context) (*report.QualityReport, []string, error) {
	var (
		out   *report.QualityReport
		files []string
	)
	err := e.run(ctx, "report", true, func(ctx context.Context) (err error) {
		if out, err = e.reports.Generate(ctx); err != nil {
			return err
		}
		files, err = e.reportStore.Save(out)
		return err
	})
	return out, files, err
}

func (e *Engine) UpdateUserCredentials(ctx context.Context) (*credential.UpdateResult, error) {
	var out *credential.UpdateResult
	err := e.run(ctx, "credentials_update", true, func(ctx context.Context) (err error) {
		out, err = e.credentials.UpdateExistingCredentials(ctx)
		return err
	})
	return out, err
}

func (e *Engine) CreateDefaultUsers(ctx context.Context) (*credential.DefaultsResult, error) {
	var out *credential.DefaultsResult
	err := e.run(ctx, "credentials_defaults", true, func(ctx context.Context) (err error) {
		out, err = e.credentials.CreateDefaultAccounts(ctx)
		return err
	})
	return out, err
}

func (e *Engine) SetupPermissions(ctx context.Context) (*credential.PermissionsResult, error) {
	var out *credential.PermissionsResult
	err := e.run(ctx, "credentials_permissions", true, func(ctx context.Context) (err error) {
		out, err = e.credentials.SetupPermissions(ctx)
		return err
	})
	return out, err
}

func (e *Engine) ValidateUserCredentials(ctx context.Context) (*credential.ValidationResult, error) {
	var out *credential.ValidationResult
	err := e.run(ctx, "credentials_validate", false, func(ctx context.Context) (err error) {
		out, err = e.credentials.ValidateCredentials(ctx)
		return err
	})
	return out, err
}

// CompleteCredentialUpdate: migrasi dari req lalu seluruh langkah kredensial.
// Kegagalan dilaporkan di CompleteResult, bukan sebagai error Go.
func (e *Engine) CompleteCredentialUpdate(ctx context.Context, req MigrateRequest) *credential.CompleteResult {
	var out *credential.CompleteResult
	err := e.run(ctx, "credentials_complete", true, func(ctx context.Context) error {
		src, err := e.openSource(ctx, req)
		if err != nil {
			out = &credential.CompleteResult{
				Error: fmt.Sprintf("migration: %v", err),
				Log:   []string{"FAILED at migration: " + err.Error()},
			}
			return err
		}
		defer func() { _ = src.Close() }()
		out = e.credentials.CompleteCredentialUpdate(ctx, src)
		if !out.Success {
			return fmt.Errorf("%s", out.Error)
		}
		return nil
	})
	if out == nil {
		// lock tidak didapat
		out = &credential.CompleteResult{Error: err.Error(), Log: []string{"FAILED: " + err.Error()}}
	}
	return out
}

// EnsureSchema membuat/memperbarui tabel tujuan.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	return e.run(ctx, "schema", true, func(ctx context.Context) error {
		return model.AutoMigrate(ctx, e.dst.DB)
	})
}

// Ping dipakai /readyz.
func (e *Engine) Ping(ctx context.Context) error {
	return e.dst.Ping(ctx)
}

// Close menutup run lock dan koneksi tujuan.
func (e *Engine) Close() error {
	return multierr.Combine(e.locker.Close(), e.dst.Close())
}
