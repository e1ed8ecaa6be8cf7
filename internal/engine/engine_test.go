package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/runlock"
	dbtest "github.com/arwahdevops/shipmigrate/internal/testutil"
)

const legacyDump = "-- dump aplikasi lama\n" +
	"INSERT INTO `kategori` (`kode_kategori`,`nama`) VALUES ('KTG01','Elektronik');\n" +
	"INSERT INTO `barang` (`kode_barang`,`nama`,`satuan`,`kode_kategori`) VALUES ('BRG0001','Televisi','unit','KTG01'),('BRG0002','Radio','unit','KTGXX');\n"

type lockedLocker struct{}

func (lockedLocker) Acquire(context.Context, string) (func(), error) { return nil, runlock.ErrLocked }
func (lockedLocker) Close() error                                     { return nil }

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		BatchSize:                100,
		BackupSuffix:             "_backup",
		ReportsDir:               t.TempDir(),
		DefaultCourierPassword:   "kurir123",
		DefaultAdminPassword:     "admin123",
		DefaultWarehousePassword: "gudang123",
		BcryptCost:               bcrypt.MinCost,
		PhoneRegion:              "ID",
	}
}

func newEngine(t *testing.T, conn *db.Connector, cfg *config.Config, locker runlock.Locker) (*Engine, *metrics.Store) {
	t.Helper()
	m := metrics.NewMetricsStore()
	e, err := NewWithDeps(cfg, Deps{Dst: conn, Locker: locker, Metrics: m, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return e, m
}

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.sql")
	require.NoError(t, os.WriteFile(path, []byte(legacyDump), 0o600))
	return path
}

func TestNewWithDeps_RequiresConnection(t *testing.T) {
	_, err := NewWithDeps(testConfig(t), Deps{})
	assert.Error(t, err)
}

func TestEngine_MigrateValidateReport(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewTestDB(t)
	cfg := testConfig(t)
	e, m := newEngine(t, conn, cfg, nil)

	log, err := e.Migrate(ctx, MigrateRequest{Source: "sql-dump", File: writeDump(t)})
	require.NoError(t, err)
	assert.Contains(t, log.Lines, "kategori: 1 attempted, 1 inserted")
	assert.Contains(t, log.Lines, "barang: 2 attempted, 2 inserted")
	assert.Equal(t, "Migration completed: 3 rows inserted", log.Lines[len(log.Lines)-1])

	integrity, err := e.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, integrity.AllValid)
	assert.Equal(t, int64(1), integrity.Orphans["barang_kategori"])

	v, err := e.ValidateData(ctx)
	require.NoError(t, err)
	assert.False(t, v.OverallValid)

	qr, files, err := e.GenerateQualityReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, qr)
	assert.False(t, qr.ValidationResults.OverallValid)
	assert.True(t, qr.FinalValidation.OverallValid)
	assert.Len(t, files, 2, "json + txt, xlsx off")
	for _, f := range files {
		assert.FileExists(t, f)
		assert.Equal(t, cfg.ReportsDir, filepath.Dir(f))
	}
	assert.Equal(t, int64(1), dbtest.Count(t, conn, model.TableBarang))

	assert.Zero(t, testutil.ToFloat64(m.OperationRunning.WithLabelValues("report")))
	assert.Positive(t, testutil.CollectAndCount(m.OperationDuration))
}

func TestEngine_MigrateUnknownSource(t *testing.T) {
	e, _ := newEngine(t, dbtest.NewTestDB(t), testConfig(t), nil)

	log, err := e.Migrate(context.Background(), MigrateRequest{Source: "ftp"})
	var me *migration.MigrationError
	require.ErrorAs(t, err, &me)
	require.NotNil(t, log)
	assert.Same(t, log, me.Log)
	assert.Contains(t, log.Lines[0], "FAILED at source: unknown source")
}

func TestEngine_OldDBWithoutLegacyConfig(t *testing.T) {
	e, _ := newEngine(t, dbtest.NewTestDB(t), testConfig(t), nil)

	_, err := e.Migrate(context.Background(), MigrateRequest{Source: "old-db", Database: "lama"})
	assert.ErrorContains(t, err, "legacy database is not configured")
}

func TestEngine_MutationsRespectRunLock(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewTestDB(t)
	dbtest.SeedValidDataset(t, conn)
	e, _ := newEngine(t, conn, testConfig(t), lockedLocker{})

	_, err := e.CleanupData(ctx)
	assert.True(t, errors.Is(err, runlock.ErrLocked))
	_, err = e.Migrate(ctx, MigrateRequest{Source: "sql-dump", File: writeDump(t)})
	assert.ErrorIs(t, err, runlock.ErrLocked)
	assert.ErrorIs(t, e.EnsureSchema(ctx), runlock.ErrLocked)

	res := e.CompleteCredentialUpdate(ctx, MigrateRequest{Source: "sql-dump", File: writeDump(t)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "another run holds the lock")

	// operasi baca tidak memakai lock
	v, err := e.ValidateData(ctx)
	require.NoError(t, err)
	assert.True(t, v.OverallValid)
	_, err = e.ValidateUserCredentials(ctx)
	assert.NoError(t, err)
}

func TestEngine_CredentialOperations(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewTestDB(t)
	e, _ := newEngine(t, conn, testConfig(t), nil)

	defaults, err := e.CreateDefaultUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "kurir", "gudang"}, defaults.Created)

	upd, err := e.UpdateUserCredentials(ctx)
	require.NoError(t, err)
	assert.Zero(t, upd.UsersUpdated)

	perms, err := e.SetupPermissions(ctx)
	require.NoError(t, err)
	assert.Zero(t, perms.Deactivated)

	v, err := e.ValidateUserCredentials(ctx)
	require.NoError(t, err)
	assert.True(t, v.Valid, "issues: %v", v.Issues)
	assert.Equal(t, int64(3), v.TotalUsers)
}

func TestEngine_CompleteCredentialUpdate(t *testing.T) {
	conn := dbtest.NewTestDB(t)
	e, _ := newEngine(t, conn, testConfig(t), nil)

	res := e.CompleteCredentialUpdate(context.Background(), MigrateRequest{Source: "sql-dump", File: writeDump(t)})
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Log, "kategori: 1 attempted, 1 inserted")
	assert.Equal(t, "Credential validation: 3 users, 0 issues (VALID)", res.Log[len(res.Log)-1])

	bad := e.CompleteCredentialUpdate(context.Background(), MigrateRequest{Source: "sql-dump", File: filepath.Join(t.TempDir(), "missing.sql")})
	assert.False(t, bad.Success)
	assert.Contains(t, bad.Error, "migration:")
}

func TestEngine_EnsureSchema(t *testing.T) {
	conn := dbtest.NewEmptyDB(t)
	e, _ := newEngine(t, conn, testConfig(t), nil)

	require.NoError(t, e.EnsureSchema(context.Background()))
	for _, tbl := range model.AllTables {
		assert.True(t, conn.HasTable(tbl.Name), tbl.Name)
	}
	assert.NoError(t, e.Ping(context.Background()))
}
