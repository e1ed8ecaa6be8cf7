package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds the Prometheus metrics collectors.
type Store struct {
	Registry               *prometheus.Registry // Use a custom registry
	OperationRunning       *prometheus.GaugeVec
	OperationDuration      *prometheus.HistogramVec
	RowsAttemptedTotal     *prometheus.CounterVec
	RowsInsertedTotal      *prometheus.CounterVec
	MigrationErrorsTotal   *prometheus.CounterVec
	ValidationIssues       *prometheus.GaugeVec
	OrphanRecords          *prometheus.GaugeVec
	CleanupActionsTotal    *prometheus.CounterVec
	CredentialActionsTotal *prometheus.CounterVec
	ReportsGeneratedTotal  *prometheus.CounterVec
	DBConnections          *prometheus.GaugeVec
}

// NewMetricsStore creates and registers Prometheus metrics.
func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Store{
		Registry: registry,
		OperationRunning: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shipmigrate_operation_running",
			Help: "Indicates if an engine operation is currently running (1 = running, 0 = idle).",
		}, []string{"operation"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shipmigrate_operation_duration_seconds",
			Help:    "Duration of engine operations (migrate, validate, cleanup, report, credentials).",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 15), // 50ms sampai ~14 menit
		}, []string{"operation", "status"}),
		RowsAttemptedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipmigrate_rows_attempted_total",
			Help: "Total number of source rows offered to the upsert writer, labeled by table.",
		}, []string{"table"}),
		RowsInsertedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipmigrate_rows_inserted_total",
			Help: "Total number of rows actually inserted (absent before), labeled by table.",
		}, []string{"table"}),
		MigrationErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipmigrate_errors_total",
			Help: "Total number of errors, labeled by type and table or db alias.",
		}, []string{"type", "table"}), // Types: source, parse, write, connection, connection_cancelled, connection_failed
		ValidationIssues: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shipmigrate_validation_issues",
			Help: "Number of validation issues found by the last validation run, labeled by table.",
		}, []string{"table"}),
		OrphanRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shipmigrate_orphan_records",
			Help: "Number of orphan records found by the last integrity check, labeled by relation.",
		}, []string{"relation"}),
		CleanupActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipmigrate_cleanup_actions_total",
			Help: "Total number of records touched by cleanup, labeled by category and action.",
		}, []string{"category", "action"}), // action: deleted, repaired, nulled, failed
		CredentialActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipmigrate_credential_actions_total",
			Help: "Total number of credential changes, labeled by action.",
		}, []string{"action"}),
		ReportsGeneratedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipmigrate_reports_generated_total",
			Help: "Total number of quality reports generated, labeled by overall result.",
		}, []string{"result"}),
		DBConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shipmigrate_db_connections_open",
			Help: "Number of open database connections at connect time.",
		}, []string{"db_alias"}),
	}
}
