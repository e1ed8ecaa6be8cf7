// Package testutil menyediakan database SQLite in-memory dan fixture untuk test.
package testutil

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/model"
)

var nonWord = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// NewTestDB membuka SQLite in-memory yang unik per test, sudah berisi skema tujuan.
func NewTestDB(t testing.TB) *db.Connector {
	t.Helper()
	conn := NewEmptyDB(t)
	require.NoError(t, model.AutoMigrate(context.Background(), conn.DB))
	return conn
}

// NewEmptyDB membuka SQLite in-memory tanpa tabel apa pun.
func NewEmptyDB(t testing.TB) *db.Connector {
	t.Helper()
	name := nonWord.ReplaceAllString(t.Name(), "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, time.Now().UnixNano())

	conn, err := db.New("sqlite", dsn, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Optimize(1, 0))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Create menyisipkan record apa adanya (gagal test jika error).
func Create(t testing.TB, conn *db.Connector, records ...interface{}) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, conn.DB.Create(r).Error, "create %T", r)
	}
}

// Count menghitung baris tabel.
func Count(t testing.TB, conn *db.Connector, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.DB.Table(table).Count(&n).Error)
	return n
}

func Ptr[T any](v T) *T { return &v }

// Date membuat tanggal tanpa jam (UTC).
func Date(y int, m time.Month, d int) *time.Time {
	v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &v
}

// SeedValidDataset mengisi satu set data yang lolos semua aturan validasi:
// KTG01 -> BRG0001, PLG0001, KRR01, PGR20240115001 dengan satu detail.
func SeedValidDataset(t testing.TB, conn *db.Connector) {
	t.Helper()
	Create(t, conn,
		&model.Kategori{IDKategori: "KTG01", NamaKategori: "Elektronik"},
		&model.Barang{IDBarang: "BRG0001", NamaBarang: "Televisi", Satuan: "unit", IDKategori: "KTG01"},
		&model.Pelanggan{IDPelanggan: "PLG0001", NamaPelanggan: "Budi", Telepon: "081234567890", Alamat: "Jl. Merdeka 1"},
		&model.Kurir{IDKurir: "KRR01", NamaKurir: "Andi", JenisKelamin: "L", Telepon: "081298765432"},
		&model.Pengiriman{NoPengiriman: "PGR20240115001", Tanggal: Date(2024, time.January, 15), IDPelanggan: "PLG0001", IDKurir: "KRR01", Status: model.StatusTerkirim},
		&model.DetailPengiriman{NoPengiriman: "PGR20240115001", IDBarang: "BRG0001", Jumlah: 2},
	)
}
