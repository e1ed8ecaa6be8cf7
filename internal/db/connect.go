package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
)

// RetryOptions mengatur percobaan ulang koneksi.
type RetryOptions struct {
	MaxRetries    int
	RetryInterval time.Duration
	PoolSize      int
	MaxLifetime   time.Duration
}

// ConnectWithRetry mencoba menghubungkan ke DB dengan logika retry, lalu ping dan optimasi pool.
func ConnectWithRetry(
	ctx context.Context,
	dbCfg config.DatabaseConfig,
	username string,
	password string,
	opts RetryOptions,
	dbLabel string,
	gl gormlogger.Interface,
	metricsStore *metrics.Store,
	logger *zap.Logger,
) (*Connector, error) {
	log := logger.With(zap.String("db", dbLabel))

	dsn, err := BuildDSN(dbCfg, username, password)
	if err != nil {
		metricsStore.MigrationErrorsTotal.WithLabelValues("connection", dbLabel).Inc()
		return nil, fmt.Errorf("could not build DSN for %s DB: %w", dbLabel, err)
	}

	var lastErr error
	for i := 0; i <= opts.MaxRetries; i++ {
		attemptStart := time.Now()
		if i > 0 {
			log.Warn("Retrying database connection",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", opts.MaxRetries+1),
				zap.Duration("wait_interval", opts.RetryInterval),
				zap.NamedError("previous_error", lastErr))
			timer := time.NewTimer(opts.RetryInterval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				metricsStore.MigrationErrorsTotal.WithLabelValues("connection_cancelled", dbLabel).Inc()
				return nil, fmt.Errorf("context cancelled while waiting to retry connection to %s DB (attempt %d): %w; last error: %v", dbLabel, i+1, ctx.Err(), lastErr)
			}
		}

		log.Info("Attempting to connect",
			zap.String("dialect", dbCfg.Dialect),
			zap.String("host", dbCfg.Host),
			zap.Int("port", dbCfg.Port),
			zap.String("dbname", dbCfg.DBName),
			zap.String("user", username),
			zap.Int("attempt", i+1))

		conn, err := New(dbCfg.Dialect, dsn, gl)
		if err != nil {
			lastErr = fmt.Errorf("connect attempt %d/%d failed for %s: %w", i+1, opts.MaxRetries+1, dbLabel, err)
			continue
		}

		if pingErr := conn.Ping(ctx); pingErr != nil {
			lastErr = fmt.Errorf("ping attempt %d/%d failed for %s: %w", i+1, opts.MaxRetries+1, dbLabel, pingErr)
			_ = conn.Close()
			continue
		}

		if err := conn.Optimize(opts.PoolSize, opts.MaxLifetime); err != nil {
			log.Warn("Failed to optimize connection pool", zap.Error(err))
		}
		metricsStore.DBConnections.WithLabelValues(dbLabel).Set(float64(conn.OpenConnections()))

		log.Info("Database connection successful", zap.Duration("connect_duration", time.Since(attemptStart)))
		return conn, nil
	}

	log.Error("Failed to connect to database after all retries",
		zap.Int("attempts", opts.MaxRetries+1),
		zap.NamedError("final_error", lastErr))
	metricsStore.MigrationErrorsTotal.WithLabelValues("connection_failed", dbLabel).Inc()
	return nil, fmt.Errorf("failed to connect to %s DB (%s at %s:%d) after %d attempts: %w",
		dbLabel, dbCfg.Dialect, dbCfg.Host, dbCfg.Port, opts.MaxRetries+1, lastErr)
}
