// internal/model/model.go
package model

import (
	"strconv"
	"strings"
	"time"
)

// Nama tabel tujuan (mengikuti skema aplikasi lama).
const (
	TableKategori         = "kategori"
	TableBarang           = "barang"
	TablePelanggan        = "pelanggan"
	TableKurir            = "kurir"
	TablePengiriman       = "pengiriman"
	TableDetailPengiriman = "detail_pengiriman"
	TableUsers            = "users"
)

// Status pengiriman.
const (
	StatusTerkirim         = 1
	StatusDiterima         = 2
	StatusDitolak          = 3
	StatusDiterimaSebagian = 4
)

// Level akun.
const (
	LevelAdmin  = 1
	LevelKurir  = 2
	LevelGudang = 3
)

// Record adalah baris tabel data yang divalidasi per-record.
type Record interface {
	TableName() string
	Key() string
}

type Kategori struct {
	IDKategori   string    `gorm:"column:id_kategori;primaryKey;type:varchar(5)" json:"id_kategori" validate:"required,max=5"`
	NamaKategori string    `gorm:"column:nama_kategori;type:varchar(100);not null;default:''" json:"nama_kategori" validate:"required,max=100"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Kategori) TableName() string { return TableKategori }
func (k Kategori) Key() string     { return k.IDKategori }

type Barang struct {
	IDBarang   string    `gorm:"column:id_barang;primaryKey;type:varchar(7)" json:"id_barang" validate:"required,max=7"`
	NamaBarang string    `gorm:"column:nama_barang;type:varchar(100);not null;default:''" json:"nama_barang" validate:"required,max=100"`
	Satuan     string    `gorm:"column:satuan;type:varchar(20);not null;default:''" json:"satuan" validate:"required,max=20"`
	IDKategori string    `gorm:"column:id_kategori;type:varchar(5);not null;default:'';index" json:"id_kategori" validate:"required,max=5"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Barang) TableName() string { return TableBarang }
func (b Barang) Key() string     { return b.IDBarang }

type Pelanggan struct {
	IDPelanggan   string    `gorm:"column:id_pelanggan;primaryKey;type:varchar(7)" json:"id_pelanggan" validate:"required,max=7"`
	NamaPelanggan string    `gorm:"column:nama_pelanggan;type:varchar(100);not null;default:''" json:"nama_pelanggan" validate:"required,max=100"`
	Telepon       string    `gorm:"column:telepon;type:varchar(20);not null;default:''" json:"telepon" validate:"required,phone"`
	Alamat        string    `gorm:"column:alamat;type:text" json:"alamat" validate:"required"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Pelanggan) TableName() string { return TablePelanggan }
func (p Pelanggan) Key() string     { return p.IDPelanggan }

type Kurir struct {
	IDKurir      string    `gorm:"column:id_kurir;primaryKey;type:varchar(5)" json:"id_kurir" validate:"required,max=5"`
	NamaKurir    string    `gorm:"column:nama_kurir;type:varchar(100);not null;default:''" json:"nama_kurir" validate:"required,max=100"`
	JenisKelamin string    `gorm:"column:jenis_kelamin;type:varchar(10);not null;default:''" json:"jenis_kelamin" validate:"required,oneof=L P"`
	Telepon      string    `gorm:"column:telepon;type:varchar(20);not null;default:''" json:"telepon" validate:"required,phone"`
	Alamat       *string   `gorm:"column:alamat;type:text" json:"alamat,omitempty"`
	Username     *string   `gorm:"column:username;type:varchar(50)" json:"username,omitempty"`
	Password     *string   `gorm:"column:password;type:varchar(255)" json:"-"`
	IDUser       *string   `gorm:"column:id_user;type:varchar(5)" json:"id_user,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Kurir) TableName() string { return TableKurir }
func (k Kurir) Key() string     { return k.IDKurir }

type Pengiriman struct {
	NoPengiriman string     `gorm:"column:no_pengiriman;primaryKey;type:varchar(14)" json:"no_pengiriman" validate:"required,shipno"`
	Tanggal      *time.Time `gorm:"column:tanggal;type:date" json:"tanggal" validate:"required"`
	IDPelanggan  string     `gorm:"column:id_pelanggan;type:varchar(7);not null;default:'';index" json:"id_pelanggan" validate:"required"`
	IDKurir      string     `gorm:"column:id_kurir;type:varchar(5);not null;default:'';index" json:"id_kurir" validate:"required"`
	Status       int        `gorm:"column:status;not null" json:"status" validate:"oneof=1 2 3 4"`
	Keterangan   *string    `gorm:"column:keterangan;type:text" json:"keterangan,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Pengiriman) TableName() string { return TablePengiriman }
func (p Pengiriman) Key() string     { return p.NoPengiriman }

type DetailPengiriman struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	NoPengiriman string    `gorm:"column:no_pengiriman;type:varchar(14);not null;default:'';index" json:"no_pengiriman" validate:"required"`
	IDBarang     string    `gorm:"column:id_barang;type:varchar(7);not null;default:'';index" json:"id_barang" validate:"required"`
	Jumlah       int       `gorm:"column:jumlah;not null;default:0" json:"jumlah" validate:"gt=0"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (DetailPengiriman) TableName() string { return TableDetailPengiriman }
func (d DetailPengiriman) Key() string     { return strconv.FormatUint(uint64(d.ID), 10) }

// User adalah akun login aplikasi. Tidak divalidasi per-record oleh validator data,
// aturan kredensial ada di package credential.
type User struct {
	IDUser             string    `gorm:"column:id_user;primaryKey;type:varchar(5)" json:"id_user"`
	Username           string    `gorm:"column:username;type:varchar(50);not null;default:''" json:"username"`
	Password           string    `gorm:"column:password;type:varchar(255);not null;default:''" json:"-"`
	Level              int       `gorm:"column:level;not null;default:0" json:"level"`
	IsActive           bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	IDKurir            *string   `gorm:"column:id_kurir;type:varchar(5)" json:"id_kurir,omitempty"`
	MustChangePassword bool      `gorm:"column:must_change_password;not null;default:false" json:"must_change_password"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string { return TableUsers }
func (u User) Key() string     { return u.IDUser }

// LevelName mengembalikan nama peran untuk level akun.
func LevelName(level int) string {
	switch level {
	case LevelAdmin:
		return "admin"
	case LevelKurir:
		return "kurir"
	case LevelGudang:
		return "gudang"
	default:
		return "unknown"
	}
}

// StatusName mengembalikan label status pengiriman.
func StatusName(status int) string {
	switch status {
	case StatusTerkirim:
		return "Terkirim"
	case StatusDiterima:
		return "Diterima"
	case StatusDitolak:
		return "Ditolak"
	case StatusDiterimaSebagian:
		return "Diterima Sebagian"
	default:
		return "Tidak Dikenal"
	}
}

// StatusFromName kebalikan StatusName; tidak peka huruf besar/kecil, spasi dan "_" dianggap sama.
func StatusFromName(name string) (int, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(name, "_", " "))), " ")
	for _, status := range []int{StatusTerkirim, StatusDiterima, StatusDitolak, StatusDiterimaSebagian} {
		if strings.ToLower(StatusName(status)) == key {
			return status, true
		}
	}
	return 0, false
}
