// internal/migration/orchestrator.go
package migration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/source"
)

// Options mengatur Migrator.
type Options struct {
	CourierPassword string
	BcryptCost      int
	// Plan kosong = DefaultPlan().
	Plan Plan
}

// Migrator memindahkan data dari Source ke database tujuan mengikuti Plan.
type Migrator struct {
	writer          *Writer
	plan            Plan
	courierPassword string
	bcryptCost      int
	metrics         *metrics.Store
	logger          *zap.Logger
	now             func() time.Time
}

func NewMigrator(conn *db.Connector, opts Options, metricsStore *metrics.Store, logger *zap.Logger) *Migrator {
	plan := opts.Plan
	if len(plan) == 0 {
		plan = DefaultPlan()
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Migrator{
		writer:          NewWriter(conn),
		plan:            plan,
		courierPassword: opts.CourierPassword,
		bcryptCost:      cost,
		metrics:         metricsStore,
		logger:          logger.Named("migration"),
		now:             time.Now,
	}
}

// Plan mengembalikan plan yang dipakai Migrator.
func (m *Migrator) Plan() Plan { return m.plan }

// Migrate menjalankan plan terhadap src. Kegagalan fatal mengembalikan *MigrationError
// yang membawa log parsial; log yang sama juga dikembalikan sebagai nilai pertama.
func (m *Migrator) Migrate(ctx context.Context, src source.Source) (*Log, error) {
	log := NewLog()
	fail := func(table string, err error) (*Log, error) {
		log.Add("FAILED at %s: %v", tableOrRun(table), err)
		m.logger.Error("Migration aborted", zap.String("table", table), zap.Error(err))
		return log, &MigrationError{Log: log, Table: table, Err: err}
	}

	if err := m.plan.Validate(); err != nil {
		return fail("", fmt.Errorf("invalid migration plan: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(m.courierPassword), m.bcryptCost)
	if err != nil {
		return fail("", fmt.Errorf("hash courier default password: %w", err))
	}

	log.Add("Starting migration from %s", src.Kind())
	m.logger.Info("Starting migration", zap.String("source", string(src.Kind())), zap.Strings("tables", m.plan.Tables()))
	m.logger.Warn("All migrated couriers receive the shared default password; rotate it after go-live")

	var totalInserted int
	for _, d := range m.plan {
		if err := ctx.Err(); err != nil {
			return fail(d.Name, err)
		}

		tc := &TransformContext{
			Table:               d.Name,
			Now:                 m.now(),
			CourierPasswordHash: string(hash),
			Logger:              m.logger,
		}

		attempted, inserted, err := m.migrateTable(ctx, src, d, tc, log)
		m.metrics.RowsAttemptedTotal.WithLabelValues(d.Name).Add(float64(attempted))
		m.metrics.RowsInsertedTotal.WithLabelValues(d.Name).Add(float64(inserted))
		if err != nil {
			return fail(d.Name, err)
		}

		log.Add("%s: %d attempted, %d inserted", d.Name, attempted, inserted)
		m.logger.Info("Table migrated", zap.String("table", d.Name), zap.Int("attempted", attempted), zap.Int("inserted", inserted))
		totalInserted += inserted
	}

	log.Add("Migration completed: %d rows inserted", totalInserted)
	return log, nil
}

func (m *Migrator) migrateTable(ctx context.Context, src source.Source, d TableDescriptor, tc *TransformContext, log *Log) (attempted, inserted int, err error) {
	rows, err := src.Fetch(ctx, d.Name)
	switch {
	case source.IsUnavailable(err):
		log.Add("%s: source unavailable, using default seed (%d rows)", d.Name, len(d.Seed))
		m.logger.Warn("Source table unavailable, falling back to seed", zap.String("table", d.Name), zap.Error(err))
		rows = make([]source.Row, 0, len(d.Seed))
		for _, r := range d.Seed {
			rows = append(rows, r.Clone())
		}
	case err != nil:
		m.metrics.MigrationErrorsTotal.WithLabelValues("source", d.Name).Inc()
		return 0, 0, err
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return attempted, inserted, err
		}
		attempted++

		if d.Transform != nil {
			if row, err = d.Transform(row, tc); err != nil {
				m.metrics.MigrationErrorsTotal.WithLabelValues("transform", d.Name).Inc()
				return attempted, inserted, fmt.Errorf("transform row %d: %w", attempted, err)
			}
		}

		ok, err := m.writer.upsertDescriptor(ctx, d, row)
		if err != nil {
			m.metrics.MigrationErrorsTotal.WithLabelValues("write", d.Name).Inc()
			return attempted, inserted, err
		}
		if ok {
			inserted++
		}
	}
	return attempted, inserted, nil
}

func tableOrRun(table string) string {
	if table == "" {
		return "run start"
	}
	return table
}
