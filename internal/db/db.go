package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultPoolSize    = 10
	defaultMaxLifetime = time.Hour
	pingTimeout        = 5 * time.Second
)

// dialectors: dialect yang didukung untuk database tujuan maupun database lama.
var dialectors = map[string]func(dsn string) gorm.Dialector{
	"mysql":    mysql.Open,
	"postgres": postgres.Open,
	"sqlite":   sqlite.Open,
}

// Connector adalah koneksi GORM ke satu database (tujuan atau aplikasi lama).
// Dialect selalu huruf kecil.
type Connector struct {
	DB      *gorm.DB
	Dialect string
}

// New membuka koneksi tanpa ping; gl nil berarti log SQL dibuang.
func New(dialect, dsn string, gl gormlogger.Interface) (*Connector, error) {
	name := strings.ToLower(dialect)
	open, ok := dialectors[name]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	if gl == nil {
		gl = gormlogger.Discard
	}

	gdb, err := gorm.Open(open(dsn), &gorm.Config{
		Logger: gl,
		// upsert & cleanup membuka transaksi sendiri
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", name, err)
	}
	return &Connector{DB: gdb, Dialect: name}, nil
}

// Optimize mengatur pool koneksi. SQLite dipaksa satu koneksi: transaksi upsert
// di beberapa koneksi akan saling mengunci file database.
func (c *Connector) Optimize(poolSize int, maxLifetime time.Duration) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB to configure pool: %w", err)
	}

	if c.Dialect == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return nil
	}
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	if maxLifetime <= 0 {
		maxLifetime = defaultMaxLifetime
	}
	sqlDB.SetMaxIdleConns(poolSize / 2)
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	return nil
}

// Ping dipakai /readyz dan retry koneksi awal.
func (c *Connector) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB to ping: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// OpenConnections dipakai untuk gauge metrics koneksi.
func (c *Connector) OpenConnections() int {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return 0
	}
	return sqlDB.Stats().OpenConnections
}

// HasTable melaporkan apakah tabel ada di database ini.
func (c *Connector) HasTable(name string) bool {
	return c.DB.Migrator().HasTable(name)
}

func (c *Connector) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB to close %s connection: %w", c.Dialect, err)
	}
	return sqlDB.Close()
}
