package migration

import (
	"fmt"

	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/source"
)

// TransformFunc mengubah satu baris sebelum di-upsert. Mengembalikan baris baru.
type TransformFunc func(row source.Row, tc *TransformContext) (source.Row, error)

// TableDescriptor menjelaskan cara memigrasikan satu tabel.
type TableDescriptor struct {
	Name       string
	PrimaryKey string
	// NaturalKey hanya untuk PrimaryKey auto-increment: dipakai untuk cek keberadaan
	// jika nilai PrimaryKey kosong.
	NaturalKey []string
	DependsOn  []string
	// Seed dipakai jika tabel tidak tersedia di source.
	Seed      []source.Row
	Transform TransformFunc
}

// Plan adalah urutan tabel yang dimigrasikan.
type Plan []TableDescriptor

// DefaultPlan: kategori, barang, pelanggan, kurir, pengiriman, detail_pengiriman.
func DefaultPlan() Plan {
	return Plan{
		{
			Name:       model.TableKategori,
			PrimaryKey: "id_kategori",
			Transform:  chain(trimStrings, requireStrings("id_kategori", "nama_kategori"), stampTimestamps),
		},
		{
			Name:       model.TableBarang,
			PrimaryKey: "id_barang",
			DependsOn:  []string{model.TableKategori},
			Transform:  chain(trimStrings, requireStrings("id_barang", "nama_barang", "satuan", "id_kategori"), stampTimestamps),
		},
		{
			Name:       model.TablePelanggan,
			PrimaryKey: "id_pelanggan",
			Transform:  chain(trimStrings, requireStrings("id_pelanggan", "nama_pelanggan", "telepon", "alamat"), stampTimestamps),
		},
		{
			Name:       model.TableKurir,
			PrimaryKey: "id_kurir",
			Transform:  chain(trimStrings, requireStrings("id_kurir", "nama_kurir", "jenis_kelamin", "telepon"), courierDefaultPassword, stampTimestamps),
		},
		{
			Name:       model.TablePengiriman,
			PrimaryKey: "no_pengiriman",
			DependsOn:  []string{model.TablePelanggan, model.TableKurir},
			Transform:  chain(trimStrings, requireStrings("no_pengiriman", "id_pelanggan", "id_kurir"), mapStatus("status"), parseDates("tanggal"), stampTimestamps),
		},
		{
			Name:       model.TableDetailPengiriman,
			PrimaryKey: "id",
			NaturalKey: []string{"no_pengiriman", "id_barang"},
			DependsOn:  []string{model.TablePengiriman, model.TableBarang},
			Transform:  chain(trimStrings, requireStrings("no_pengiriman", "id_barang"), coerceInts("jumlah", "id"), stampTimestamps),
		},
	}
}

// Validate memastikan setiap dependensi muncul sebelum tabel yang bergantung padanya.
func (p Plan) Validate() error {
	seen := make(map[string]bool, len(p))
	for _, d := range p {
		if d.Name == "" || d.PrimaryKey == "" {
			return fmt.Errorf("plan entry %q: name and primary key are required", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("plan entry %q appears twice", d.Name)
		}
		for _, dep := range d.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("plan entry %q depends on %q, which is not migrated before it", d.Name, dep)
			}
		}
		seen[d.Name] = true
	}
	return nil
}

// Tables mengembalikan nama tabel sesuai urutan plan.
func (p Plan) Tables() []string {
	names := make([]string, len(p))
	for i, d := range p {
		names[i] = d.Name
	}
	return names
}
