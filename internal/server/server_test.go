package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/shipmigrate/internal/cleanup"
	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/credential"
	"github.com/arwahdevops/shipmigrate/internal/engine"
	"github.com/arwahdevops/shipmigrate/internal/integrity"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/report"
	"github.com/arwahdevops/shipmigrate/internal/runlock"
	"github.com/arwahdevops/shipmigrate/internal/validation"
)

type fakeOps struct {
	migrateReq engine.MigrateRequest
	migrateErr error
	pingErr    error
	cleanupErr error
	complete   *credential.CompleteResult
}

func (f *fakeOps) Migrate(_ context.Context, req engine.MigrateRequest) (*migration.Log, error) {
	f.migrateReq = req
	log := migration.NewLog()
	log.Add("kategori: 2 attempted, 2 inserted")
	if f.migrateErr != nil {
		log.Add("FAILED at barang: %v", f.migrateErr)
		return log, &migration.MigrationError{Log: log, Table: "barang", Err: f.migrateErr}
	}
	return log, nil
}

func (f *fakeOps) VerifyIntegrity(context.Context) (*integrity.Report, error) {
	return &integrity.Report{Counts: map[string]int64{"kategori": 2}, Orphans: map[string]int64{}, AllValid: true}, nil
}

func (f *fakeOps) ValidateData(context.Context) (*validation.Report, error) {
	return &validation.Report{OverallValid: true, Log: []string{"Overall: VALID"}}, nil
}

func (f *fakeOps) CleanupData(context.Context) (*cleanup.Report, error) {
	return &cleanup.Report{Log: []string{"Cleanup completed: 0 deleted, 0 repaired, 0 nulled"}}, f.cleanupErr
}

func (f *fakeOps) GenerateQualityReport(context.Context) (*report.QualityReport, []string, error) {
	return &report.QualityReport{ID: "r1"}, []string{"/tmp/r1.json"}, nil
}

func (f *fakeOps) UpdateUserCredentials(context.Context) (*credential.UpdateResult, error) {
	return &credential.UpdateResult{UsersUpdated: 1, Log: []string{}}, nil
}

func (f *fakeOps) CreateDefaultUsers(context.Context) (*credential.DefaultsResult, error) {
	return &credential.DefaultsResult{Created: []string{"admin"}}, nil
}

func (f *fakeOps) SetupPermissions(context.Context) (*credential.PermissionsResult, error) {
	return &credential.PermissionsResult{}, nil
}

func (f *fakeOps) ValidateUserCredentials(context.Context) (*credential.ValidationResult, error) {
	return &credential.ValidationResult{Valid: true, TotalUsers: 3, Issues: []string{}}, nil
}

func (f *fakeOps) CompleteCredentialUpdate(_ context.Context, req engine.MigrateRequest) *credential.CompleteResult {
	f.migrateReq = req
	return f.complete
}

func (f *fakeOps) Ping(context.Context) error { return f.pingErr }

func newTestRouter(t *testing.T, ops Operations, pprof bool) http.Handler {
	cfg := &config.Config{EnablePprof: pprof, CORSAllowedOrigins: []string{"*"}}
	return NewRouter(cfg, ops, metrics.NewMetricsStore(), zaptest.NewLogger(t))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&out), w.Body.String())
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	ops := &fakeOps{}
	h := newTestRouter(t, ops, false)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	ops.pingErr = errors.New("connection refused")
	w := do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, newTestRouter(t, &fakeOps{}, false), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shipmigrate_")
}

func TestPprofToggle(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, do(t, newTestRouter(t, &fakeOps{}, false), http.MethodGet, "/debug/pprof/", "").Code)
	assert.Equal(t, http.StatusOK, do(t, newTestRouter(t, &fakeOps{}, true), http.MethodGet, "/debug/pprof/", "").Code)
}

func TestMigrateEndpoint(t *testing.T) {
	ops := &fakeOps{}
	h := newTestRouter(t, ops, false)

	w := do(t, h, http.MethodPost, "/api/v1/migrate", `{"source":"sql-dump","file":"/data/lama.sql"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, engine.MigrateRequest{Source: "sql-dump", File: "/data/lama.sql"}, ops.migrateReq)
	assert.Equal(t, []interface{}{"kategori: 2 attempted, 2 inserted"}, decode(t, w)["log"])

	// body kosong = source default
	w = do(t, h, http.MethodPost, "/api/v1/migrate", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, engine.MigrateRequest{}, ops.migrateReq)

	w = do(t, h, http.MethodPost, "/api/v1/migrate", `{"source":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMigrateEndpoint_FailureCarriesLog(t *testing.T) {
	h := newTestRouter(t, &fakeOps{migrateErr: errors.New("boom")}, false)

	w := do(t, h, http.MethodPost, "/api/v1/migrate", `{"source":"backup-tables"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "migration failed at table barang: boom", body["error"])
	assert.Equal(t, []interface{}{"kategori: 2 attempted, 2 inserted", "FAILED at barang: boom"}, body["log"])
}

func TestCleanupEndpoint_Locked(t *testing.T) {
	h := newTestRouter(t, &fakeOps{cleanupErr: fmt.Errorf("%w (shipmigrate:lock:x)", runlock.ErrLocked)}, false)

	w := do(t, h, http.MethodPost, "/api/v1/cleanup", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["error"], "another run holds the lock")
}

func TestReadEndpoints(t *testing.T) {
	h := newTestRouter(t, &fakeOps{}, false)

	w := do(t, h, http.MethodGet, "/api/v1/integrity", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["all_valid"])

	w = do(t, h, http.MethodGet, "/api/v1/validation", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/credentials/validation", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["total_users"])

	w = do(t, h, http.MethodPost, "/api/v1/reports/quality", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"/tmp/r1.json"}, decode(t, w)["files"])

	for _, path := range []string{"/api/v1/credentials/update", "/api/v1/credentials/defaults", "/api/v1/credentials/permissions"} {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, path, "").Code, path)
	}
}

func TestCompleteCredentialsEndpoint(t *testing.T) {
	ops := &fakeOps{complete: &credential.CompleteResult{Success: true, Log: []string{"ok"}}}
	h := newTestRouter(t, ops, false)

	w := do(t, h, http.MethodPost, "/api/v1/credentials/complete", `{"source":"old-db","database":"lama"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lama", ops.migrateReq.Database)

	ops.complete = &credential.CompleteResult{Error: "migration: boom", Log: []string{"FAILED at migration: boom"}}
	w = do(t, h, http.MethodPost, "/api/v1/credentials/complete", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "migration: boom", decode(t, w)["error"])
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := &config.Config{HTTPPort: 0}
	assert.NoError(t, Run(ctx, cfg, &fakeOps{}, metrics.NewMetricsStore(), zaptest.NewLogger(t)))
}
