package source

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/arwahdevops/shipmigrate/internal/model"
)

// tableColumns: kolom tujuan per tabel logis. Kolom lain dari source dibuang.
var tableColumns = map[string][]string{
	model.TableKategori:         {"id_kategori", "nama_kategori", "created_at", "updated_at"},
	model.TableBarang:           {"id_barang", "nama_barang", "satuan", "id_kategori", "created_at", "updated_at"},
	model.TablePelanggan:        {"id_pelanggan", "nama_pelanggan", "telepon", "alamat", "created_at", "updated_at"},
	model.TableKurir:            {"id_kurir", "nama_kurir", "jenis_kelamin", "telepon", "alamat", "username", "password", "id_user", "created_at", "updated_at"},
	model.TablePengiriman:       {"no_pengiriman", "tanggal", "id_pelanggan", "id_kurir", "status", "keterangan", "created_at", "updated_at"},
	model.TableDetailPengiriman: {"id", "no_pengiriman", "id_barang", "jumlah", "created_at", "updated_at"},
}

// optionalColumns: string kosong jadi NULL, kolom yang tidak ada di source juga NULL.
var optionalColumns = map[string]map[string]bool{
	model.TableKurir:            {"alamat": true, "username": true, "password": true, "id_user": true},
	model.TablePengiriman:       {"keterangan": true},
	model.TableDetailPengiriman: {"id": true},
}

// columnAliases memetakan nama kolom aplikasi lama ke kolom tujuan.
var columnAliases = map[string]map[string]string{
	model.TableKategori: {
		"kode_kategori": "id_kategori",
		"nama":          "nama_kategori",
		"kategori":      "nama_kategori",
	},
	model.TableBarang: {
		"kode_barang":   "id_barang",
		"nama":          "nama_barang",
		"unit":          "satuan",
		"kode_kategori": "id_kategori",
		"kategori_id":   "id_kategori",
	},
	model.TablePelanggan: {
		"kode_pelanggan": "id_pelanggan",
		"nama":           "nama_pelanggan",
		"no_telp":        "telepon",
		"no_hp":          "telepon",
		"telp":           "telepon",
	},
	model.TableKurir: {
		"kode_kurir": "id_kurir",
		"nama":       "nama_kurir",
		"gender":     "jenis_kelamin",
		"jk":         "jenis_kelamin",
		"no_telp":    "telepon",
		"no_hp":      "telepon",
		"telp":       "telepon",
	},
	model.TablePengiriman: {
		"no_resi":           "no_pengiriman",
		"tgl":               "tanggal",
		"tgl_pengiriman":    "tanggal",
		"tanggal_kirim":     "tanggal",
		"kode_pelanggan":    "id_pelanggan",
		"kode_kurir":        "id_kurir",
		"status_pengiriman": "status",
	},
	model.TableDetailPengiriman: {
		"id_detail":   "id",
		"kode_barang": "id_barang",
		"qty":         "jumlah",
		"kuantitas":   "jumlah",
	},
}

// Columns mengembalikan kolom tujuan untuk tabel logis.
func Columns(table string) []string {
	return tableColumns[table]
}

// NormalizeRow memetakan alias, membuang kolom asing, trim string, dan mengisi NULL
// untuk kolom opsional yang kosong atau tidak ada.
func NormalizeRow(table string, raw map[string]interface{}) (Row, error) {
	cols, ok := tableColumns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	aliases := columnAliases[table]
	optional := optionalColumns[table]

	out := make(Row, len(cols))
	for name, v := range raw {
		col := strings.ToLower(strings.TrimSpace(name))
		if target, ok := aliases[col]; ok {
			// kolom tujuan asli menang atas alias
			if _, exists := raw[target]; exists {
				continue
			}
			col = target
		}
		if !known[col] {
			continue
		}
		out[col] = normalizeValue(col, v)
	}

	for _, c := range cols {
		v, present := out[c]
		if optional[c] || c == "created_at" || c == "updated_at" {
			if !present {
				out[c] = nil
				continue
			}
			if s, ok := v.(string); ok && s == "" {
				out[c] = nil
			}
		}
	}
	return out, nil
}

func normalizeValue(col string, v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeString(col, string(val))
	case string:
		return normalizeString(col, val)
	case driver.Valuer:
		inner, err := val.Value()
		if err != nil {
			return nil
		}
		return normalizeValue(col, inner)
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return val
	default:
		return val
	}
}

func normalizeString(col, s string) interface{} {
	s = strings.TrimSpace(s)
	// tanggal nol MySQL (0000-00-00) tidak bisa diparse, anggap kosong
	if (col == "tanggal" || col == "created_at" || col == "updated_at") && strings.HasPrefix(s, "0000-00-00") {
		return nil
	}
	return s
}
