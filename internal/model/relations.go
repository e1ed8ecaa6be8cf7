package model

// TableInfo menjelaskan satu tabel data tujuan.
type TableInfo struct {
	Name       string
	PrimaryKey string
}

// DataTables adalah tabel data dalam urutan induk-dulu. Urutan ini dipakai
// oleh validator, laporan, dan cleanup (hapus induk dulu, cascade eksplisit).
var DataTables = []TableInfo{
	{Name: TableKategori, PrimaryKey: "id_kategori"},
	{Name: TableBarang, PrimaryKey: "id_barang"},
	{Name: TablePelanggan, PrimaryKey: "id_pelanggan"},
	{Name: TableKurir, PrimaryKey: "id_kurir"},
	{Name: TablePengiriman, PrimaryKey: "no_pengiriman"},
	{Name: TableDetailPengiriman, PrimaryKey: "id"},
}

// AllTables termasuk users; dipakai untuk hitungan baris di integrity report.
var AllTables = append(append([]TableInfo{}, DataTables...), TableInfo{Name: TableUsers, PrimaryKey: "id_user"})

// PrimaryKeyOf mengembalikan kolom primary key tabel, atau "" jika tidak dikenal.
func PrimaryKeyOf(table string) string {
	for _, t := range AllTables {
		if t.Name == table {
			return t.PrimaryKey
		}
	}
	return ""
}

// Relation adalah referensi child.fk -> parent.pk.
type Relation struct {
	Name       string
	Child      string
	ChildKey   string // primary key child, dilaporkan untuk setiap orphan
	ForeignKey string
	Parent     string
	ParentKey  string
	// Optional: NULL / '' bukan pelanggaran, hanya nilai terisi yang harus menunjuk induk.
	Optional bool
}

// Relations mengembalikan semua relasi yang diperiksa integrity verifier.
func Relations() []Relation {
	return []Relation{
		{Name: "barang_kategori", Child: TableBarang, ChildKey: "id_barang", ForeignKey: "id_kategori", Parent: TableKategori, ParentKey: "id_kategori"},
		{Name: "pengiriman_pelanggan", Child: TablePengiriman, ChildKey: "no_pengiriman", ForeignKey: "id_pelanggan", Parent: TablePelanggan, ParentKey: "id_pelanggan"},
		{Name: "pengiriman_kurir", Child: TablePengiriman, ChildKey: "no_pengiriman", ForeignKey: "id_kurir", Parent: TableKurir, ParentKey: "id_kurir"},
		{Name: "detail_pengiriman_pengiriman", Child: TableDetailPengiriman, ChildKey: "id", ForeignKey: "no_pengiriman", Parent: TablePengiriman, ParentKey: "no_pengiriman"},
		{Name: "detail_pengiriman_barang", Child: TableDetailPengiriman, ChildKey: "id", ForeignKey: "id_barang", Parent: TableBarang, ParentKey: "id_barang"},
		{Name: "kurir_users", Child: TableKurir, ChildKey: "id_kurir", ForeignKey: "id_user", Parent: TableUsers, ParentKey: "id_user", Optional: true},
	}
}

// RelationsOf mengembalikan relasi di mana table adalah child.
func RelationsOf(table string) []Relation {
	var out []Relation
	for _, r := range Relations() {
		if r.Child == table {
			out = append(out, r)
		}
	}
	return out
}

// RelationByName mencari relasi berdasarkan nama.
func RelationByName(name string) (Relation, bool) {
	for _, r := range Relations() {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}
