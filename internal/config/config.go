package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	// Migration Settings
	BatchSize    int    `env:"BATCH_SIZE" envDefault:"500"`
	BackupSuffix string `env:"BACKUP_SUFFIX" envDefault:"_backup"` // Tabel backup: <table><suffix>

	// Retry Logic (koneksi database)
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`

	// Connection Pool
	ConnPoolSize    int           `env:"CONN_POOL_SIZE" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`

	// Reports
	ReportsDir string `env:"REPORTS_DIR" envDefault:"storage/logs/reports"`
	ReportXLSX bool   `env:"REPORT_XLSX" envDefault:"false"`

	// Credentials
	DefaultCourierPassword   string `env:"DEFAULT_COURIER_PASSWORD" envDefault:"kurir123"`
	DefaultAdminPassword     string `env:"DEFAULT_ADMIN_PASSWORD" envDefault:"admin123"`
	DefaultWarehousePassword string `env:"DEFAULT_WAREHOUSE_PASSWORD" envDefault:"gudang123"`
	BcryptCost               int    `env:"BCRYPT_COST" envDefault:"10"`
	ForcePasswordReset       bool   `env:"FORCE_PASSWORD_RESET" envDefault:"false"`

	// Validation
	PhoneRegion string `env:"PHONE_REGION" envDefault:"ID"`

	// Observability & Debugging
	EnableJsonLogging  bool     `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
	DebugMode          bool     `env:"DEBUG_MODE" envDefault:"false"`
	EnablePprof        bool     `env:"ENABLE_PPROF" envDefault:"false"`
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8080"` // /api/v1, /metrics, /healthz, /readyz
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Vault
	VaultEnabled      bool   `env:"VAULT_ENABLED" envDefault:"false"`
	VaultAddr         string `env:"VAULT_ADDR" envDefault:"http://127.0.0.1:8200"`
	VaultToken        string `env:"VAULT_TOKEN"`
	VaultCACert       string `env:"VAULT_CACERT"`
	VaultSkipVerify   bool   `env:"VAULT_SKIP_VERIFY" envDefault:"false"`
	VaultMountPath    string `env:"VAULT_MOUNT_PATH" envDefault:"secret"`
	DstSecretPath     string `env:"DST_SECRET_PATH"`
	DstUsernameKey    string `env:"DST_USERNAME_KEY" envDefault:"username"`
	DstPasswordKey    string `env:"DST_PASSWORD_KEY" envDefault:"password"`
	LegacySecretPath  string `env:"LEGACY_SECRET_PATH"`
	LegacyUsernameKey string `env:"LEGACY_USERNAME_KEY" envDefault:"username"`
	LegacyPasswordKey string `env:"LEGACY_PASSWORD_KEY" envDefault:"password"`

	// Run lock (kosong = tanpa lock)
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RunLockTTL    time.Duration `env:"RUN_LOCK_TTL" envDefault:"2m"`

	// Database Configurations
	DstDB    DatabaseConfig       `envPrefix:"DST_"`
	LegacyDB LegacyDatabaseConfig `envPrefix:"LEGACY_"`
}

type DatabaseConfig struct {
	Dialect  string `env:"DIALECT,required"`
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     int    `env:"PORT" envDefault:"3306"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"` // Boleh kosong jika diambil dari Vault
	DBName   string `env:"DBNAME,required"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// LegacyDatabaseConfig bentuknya sama dengan DatabaseConfig, tapi semua field opsional.
// Hanya dipakai oleh source "old-db".
type LegacyDatabaseConfig struct {
	Dialect  string `env:"DIALECT"`
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     int    `env:"PORT" envDefault:"3306"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	DBName   string `env:"DBNAME"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// Enabled reports whether a legacy database has been configured at all.
func (l LegacyDatabaseConfig) Enabled() bool {
	return l.Dialect != ""
}

// AsDatabaseConfig converts to the common shape, optionally overriding the database name.
func (l LegacyDatabaseConfig) AsDatabaseConfig(dbNameOverride string) DatabaseConfig {
	name := l.DBName
	if dbNameOverride != "" {
		name = dbNameOverride
	}
	return DatabaseConfig{
		Dialect:  l.Dialect,
		Host:     l.Host,
		Port:     l.Port,
		User:     l.User,
		Password: l.Password,
		DBName:   name,
		SSLMode:  l.SSLMode,
	}
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate memeriksa nilai konfigurasi setelah parsing dan setelah override dari flag CLI.
func Validate(cfg *Config) error {
	allowedDialects := map[string]bool{
		"mysql":    true,
		"postgres": true,
		"sqlite":   true,
	}

	cfg.DstDB.Dialect = strings.ToLower(cfg.DstDB.Dialect)
	if !allowedDialects[cfg.DstDB.Dialect] {
		return fmt.Errorf("invalid destination dialect: %s. Valid options: %v", cfg.DstDB.Dialect, getMapKeys(allowedDialects))
	}
	if cfg.LegacyDB.Enabled() {
		cfg.LegacyDB.Dialect = strings.ToLower(cfg.LegacyDB.Dialect)
		if !allowedDialects[cfg.LegacyDB.Dialect] {
			return fmt.Errorf("invalid legacy dialect: %s. Valid options: %v", cfg.LegacyDB.Dialect, getMapKeys(allowedDialects))
		}
	}

	// Validasi port
	validatePort := func(port int, name string) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s port: %d", name, port)
		}
		return nil
	}
	if cfg.DstDB.Dialect != "sqlite" {
		if err := validatePort(cfg.DstDB.Port, "destination"); err != nil {
			return err
		}
	}
	if cfg.LegacyDB.Enabled() && cfg.LegacyDB.Dialect != "sqlite" {
		if err := validatePort(cfg.LegacyDB.Port, "legacy"); err != nil {
			return err
		}
	}
	if err := validatePort(cfg.HTTPPort, "http"); err != nil {
		return err
	}

	// Validasi nilai numerik
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if cfg.ConnPoolSize <= 0 {
		return fmt.Errorf("connection pool size must be positive")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cfg.BcryptCost)
	}
	if cfg.RunLockTTL <= 0 {
		return fmt.Errorf("run lock ttl must be positive")
	}

	if strings.TrimSpace(cfg.BackupSuffix) == "" {
		return fmt.Errorf("backup suffix cannot be empty")
	}
	if strings.TrimSpace(cfg.ReportsDir) == "" {
		return fmt.Errorf("reports directory cannot be empty")
	}
	if len(cfg.PhoneRegion) != 2 {
		return fmt.Errorf("phone region must be a two-letter region code, got %q", cfg.PhoneRegion)
	}
	cfg.PhoneRegion = strings.ToUpper(cfg.PhoneRegion)

	// Password default tidak boleh kosong, karena akan di-hash dan dipakai untuk login
	defaults := map[string]string{
		"DEFAULT_COURIER_PASSWORD":   cfg.DefaultCourierPassword,
		"DEFAULT_ADMIN_PASSWORD":     cfg.DefaultAdminPassword,
		"DEFAULT_WAREHOUSE_PASSWORD": cfg.DefaultWarehousePassword,
	}
	for _, name := range sortedKeys(defaults) {
		if len(defaults[name]) < 6 {
			return fmt.Errorf("%s must be at least 6 characters", name)
		}
	}

	// Validasi SSLMode
	validSSL := map[string]bool{
		"disable":     true,
		"allow":       true,
		"prefer":      true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if isSSLModeRelevant(cfg.DstDB.Dialect) && !validSSL[strings.ToLower(cfg.DstDB.SSLMode)] {
		return fmt.Errorf("invalid SSL mode for destination DB: %s", cfg.DstDB.SSLMode)
	}
	if cfg.LegacyDB.Enabled() && isSSLModeRelevant(cfg.LegacyDB.Dialect) && !validSSL[strings.ToLower(cfg.LegacyDB.SSLMode)] {
		return fmt.Errorf("invalid SSL mode for legacy DB: %s", cfg.LegacyDB.SSLMode)
	}

	return nil
}

func getMapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Sort for consistent error messages
	return keys
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isSSLModeRelevant(dialect string) bool {
	switch strings.ToLower(dialect) {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
