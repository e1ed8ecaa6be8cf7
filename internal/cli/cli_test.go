package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/engine"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/testutil"
)

// sharedEngine tidak menutup koneksi: satu database dipakai beberapa perintah dalam satu test.
type sharedEngine struct{ *engine.Engine }

func (sharedEngine) Close() error { return nil }

type harness struct {
	t    *testing.T
	conn *db.Connector
	app  *app
	cfg  *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Setenv("DST_DIALECT", "sqlite")
	t.Setenv("DST_DBNAME", "shipmigrate_test")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("REPORTS_DIR", t.TempDir())

	h := &harness{t: t, conn: testutil.NewTestDB(t)}
	h.app = &app{
		logger:  zaptest.NewLogger(t),
		metrics: metrics.NewMetricsStore(),
		newEngine: func(_ context.Context, cfg *config.Config, m *metrics.Store, log *zap.Logger) (Engine, error) {
			h.cfg = cfg
			e, err := engine.NewWithDeps(cfg, engine.Deps{Dst: h.conn, Metrics: m, Logger: log})
			if err != nil {
				return nil, err
			}
			return sharedEngine{e}, nil
		},
	}
	return h
}

func (h *harness) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	args = append([]string{"--env-file", filepath.Join(h.t.TempDir(), "absent.env")}, args...)
	code := run(context.Background(), h.app, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeDump(t *testing.T) string {
	t.Helper()
	dump := "INSERT INTO kategori (kode_kategori, nama) VALUES ('KTG01','Elektronik');\n" +
		"INSERT INTO barang (kode_barang, nama, satuan, kode_kategori) VALUES ('BRG0001','Televisi','unit','KTG01'),('BRG0002','Radio','unit','KTGXX');\n"
	path := filepath.Join(t.TempDir(), "lama.sql")
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o600))
	return path
}

func TestMigrateValidateReportFlow(t *testing.T) {
	h := newHarness(t)
	reports := t.TempDir()

	code, out, stderr := h.run("migrate", "--source", "sql-dump", "--file", writeDump(t))
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "barang: 2 attempted, 2 inserted")

	code, out, _ = h.run("verify")
	assert.Equal(t, ExitInvalidData, code)
	assert.Contains(t, out, "  barang_kategori: 1")
	assert.Contains(t, out, "Integrity: INVALID")

	code, out, _ = h.run("validate")
	assert.Equal(t, ExitInvalidData, code)
	assert.Contains(t, out, "Overall: INVALID")
	assert.Contains(t, out, "BRG0002")

	code, out, stderr = h.run("--reports-dir", reports, "report")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "DATA QUALITY REPORT")
	assert.Contains(t, out, "Saved: "+reports)
	assert.Equal(t, reports, h.cfg.ReportsDir)

	code, out, _ = h.run("validate")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Overall: VALID")
}

func TestMigrateFailurePrintsPartialLog(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("migrate", "--source", "sql-dump", "--file", filepath.Join(t.TempDir(), "missing.sql"))
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "Error:")
}

func TestCredentialCommands(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("credentials", "defaults")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Default accounts: created [admin, kurir, gudang]")

	code, out, _ = h.run("credentials", "validate")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Credential validation: 3 users, 0 issues (VALID)")

	require.NoError(t, h.conn.DB.Exec("UPDATE users SET password = 'plain' WHERE username = 'admin'").Error)
	code, out, _ = h.run("credentials", "validate")
	assert.Equal(t, ExitInvalidData, code)
	assert.Contains(t, out, "password is not a bcrypt hash (plaintext)")

	code, out, _ = h.run("credentials", "update")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Credentials updated: 1 users, 0 couriers")

	code, out, stderr := h.run("credentials", "complete", "--source", "sql-dump", "--file", writeDump(t))
	require.Equal(t, ExitOK, code, stderr)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "Credential validation: 3 users, 0 issues (VALID)"), out)
}

func TestSchemaAndCleanup(t *testing.T) {
	h := newHarness(t)
	testutil.SeedValidDataset(t, h.conn)

	code, out, _ := h.run("schema")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Schema is up to date")

	code, out, _ = h.run("cleanup")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Cleanup completed: 0 deleted, 0 repaired, 0 nulled")
}

func TestConfigErrors(t *testing.T) {
	h := newHarness(t)

	t.Setenv("DST_DIALECT", "oracle")
	code, _, stderr := h.run("validate")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "invalid destination dialect")

	t.Setenv("DST_DIALECT", "sqlite")
	code, _, stderr = h.run("--batch-size", "-5", "validate")
	assert.Equal(t, ExitOK, code, stderr, "ukuran batch negatif diabaikan, nilai env dipakai")
	assert.Equal(t, 500, h.cfg.BatchSize)
}

func TestEnvFileOverridesEnvironment(t *testing.T) {
	h := newHarness(t)
	t.Setenv("PHONE_REGION", "SG")
	envFile := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PHONE_REGION=my\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), h.app, []string{"--env-file", envFile, "credentials", "validate"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Equal(t, "MY", h.cfg.PhoneRegion)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("frobnicate")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "unknown command")
}
