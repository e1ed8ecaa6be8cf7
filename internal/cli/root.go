// Package cli adalah entrypoint command line shipmigrate (cobra).
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/engine"
	"github.com/arwahdevops/shipmigrate/internal/logger"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/server"
)

// Exit code
const (
	ExitOK          = 0
	ExitFatal       = 1
	ExitInvalidData = 2
)

// errInvalidData: perintah selesai, tapi data/kredensial tidak valid.
var errInvalidData = errors.New("invalid data")

// Engine adalah operasi yang dibutuhkan CLI; dipenuhi *engine.Engine.
type Engine interface {
	server.Operations
	EnsureSchema(ctx context.Context) error
	Close() error
}

// EngineFactory membuat Engine dari konfigurasi final.
type EngineFactory func(ctx context.Context, cfg *config.Config, metricsStore *metrics.Store, logger *zap.Logger) (Engine, error)

func defaultEngineFactory(ctx context.Context, cfg *config.Config, metricsStore *metrics.Store, logger *zap.Logger) (Engine, error) {
	return engine.New(ctx, cfg, metricsStore, logger)
}

type app struct {
	envFile    string
	batchSize  int
	reportsDir string

	newEngine EngineFactory
	logger    *zap.Logger // nil = logger.Init dari konfigurasi
	metrics   *metrics.Store
}

// Execute menjalankan CLI dengan os.Args dan mengembalikan exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{newEngine: defaultEngineFactory, metrics: metrics.NewMetricsStore()}
	code := run(ctx, a, os.Args[1:], os.Stdout, os.Stderr)
	_ = logger.Log.Sync()
	return code
}

func run(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errInvalidData):
		return ExitInvalidData
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return ExitFatal
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "shipmigrate",
		Short:         "Migrate, validate and clean legacy logistics shipment data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Path to a .env file loaded before reading the environment")
	root.PersistentFlags().IntVar(&a.batchSize, "batch-size", 0, "Override BATCH_SIZE")
	root.PersistentFlags().StringVar(&a.reportsDir, "reports-dir", "", "Override REPORTS_DIR")

	root.AddCommand(
		newMigrateCommand(a),
		newVerifyCommand(a),
		newValidateCommand(a),
		newCleanupCommand(a),
		newReportCommand(a),
		newCredentialsCommand(a),
		newSchemaCommand(a),
		newServeCommand(a),
	)
	return root
}

// loadConfig: .env (overload), environment, override dari flag, lalu validasi ulang.
func (a *app) loadConfig() (*config.Config, error) {
	if a.envFile != "" {
		if err := godotenv.Overload(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if a.batchSize > 0 {
		cfg.BatchSize = a.batchSize
	}
	if a.reportsDir != "" {
		cfg.ReportsDir = a.reportsDir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withEngine menyiapkan konfigurasi, logger, dan engine untuk satu perintah.
func (a *app) withEngine(fn func(cmd *cobra.Command, cfg *config.Config, eng Engine, log *zap.Logger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}

		log := a.logger
		if log == nil {
			if err := logger.Init(cfg.DebugMode, cfg.EnableJsonLogging); err != nil {
				return err
			}
			log = logger.Log
		}
		log.Info("Configuration loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("dst_dialect", cfg.DstDB.Dialect),
			zap.String("dst_host", cfg.DstDB.Host),
			zap.String("dst_dbname", cfg.DstDB.DBName),
			zap.Bool("legacy_enabled", cfg.LegacyDB.Enabled()),
			zap.Int("batch_size", cfg.BatchSize),
			zap.String("reports_dir", cfg.ReportsDir),
			zap.Bool("vault_enabled", cfg.VaultEnabled),
			zap.Bool("run_lock", cfg.RedisAddr != ""))

		if a.metrics == nil {
			a.metrics = metrics.NewMetricsStore()
		}
		eng, err := a.newEngine(cmd.Context(), cfg, a.metrics, log)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := eng.Close(); cerr != nil {
				log.Error("Error closing engine", zap.Error(cerr))
			}
		}()
		return fn(cmd, cfg, eng, log)
	}
}
