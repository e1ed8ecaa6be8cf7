package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/arwahdevops/shipmigrate/internal/config"
)

// BuildDSN membangun Data Source Name (DSN) string untuk dialect yang didukung.
func BuildDSN(cfg config.DatabaseConfig, username, password string) (string, error) {
	sslmode := strings.ToLower(cfg.SSLMode)

	switch strings.ToLower(cfg.Dialect) {
	case "mysql":
		// Referensi: https://github.com/go-sql-driver/mysql#dsn-data-source-name
		tlsParam := "tls=false"
		switch sslmode {
		case "", "disable":
		case "allow", "prefer":
			tlsParam = "tls=skip-verify"
		default:
			// verify-ca/verify-full butuh mysql.RegisterTLSConfig, di sini cukup tls=true
			tlsParam = "tls=true"
		}
		// parseTime wajib: kolom tanggal & created_at di-scan ke time.Time
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=10s&readTimeout=60s&writeTimeout=60s&%s",
			username, password, cfg.Host, cfg.Port, cfg.DBName, tlsParam), nil
	case "postgres":
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=10",
			cfg.Host, cfg.Port, username, quotePgValue(password), cfg.DBName, sslmode), nil
	case "sqlite":
		// DBName = path file. _busy_timeout: tunggu 5 detik jika DB terkunci
		params := url.Values{}
		params.Set("cache", "shared")
		params.Set("_busy_timeout", "5000")
		params.Set("_journal_mode", "WAL")
		return fmt.Sprintf("file:%s?%s", cfg.DBName, params.Encode()), nil
	default:
		return "", fmt.Errorf("cannot build DSN: unsupported dialect %q", cfg.Dialect)
	}
}

// quotePgValue meng-quote nilai keyword/value libpq yang berisi spasi atau kutip.
func quotePgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
