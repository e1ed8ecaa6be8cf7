package model

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Models mengembalikan semua model tujuan dalam urutan induk-dulu.
func Models() []interface{} {
	return []interface{}{
		&Kategori{},
		&Barang{},
		&Pelanggan{},
		&User{},
		&Kurir{},
		&Pengiriman{},
		&DetailPengiriman{},
	}
}

// AutoMigrate membuat atau memperbarui tabel tujuan. Relasi sengaja tidak dideklarasikan
// sebagai FOREIGN KEY: data legacy boleh masuk dulu, orphan dibersihkan oleh cleanup.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.WithContext(ctx).AutoMigrate(m); err != nil {
			return fmt.Errorf("auto-migrate %T: %w", m, err)
		}
	}
	return nil
}
