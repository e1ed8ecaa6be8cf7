package migration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/source"
	"github.com/arwahdevops/shipmigrate/internal/testutil"
)

// memorySource adalah Source in-memory; tabel yang tidak ada di map dianggap unavailable.
type memorySource struct {
	tables  map[string][]source.Row
	failOn  string
	fetched []string
}

func (s *memorySource) Kind() source.Kind { return source.KindBackupTables }

func (s *memorySource) Fetch(ctx context.Context, table string) ([]source.Row, error) {
	s.fetched = append(s.fetched, table)
	if table == s.failOn {
		return nil, errors.New("disk on fire")
	}
	rows, ok := s.tables[table]
	if !ok {
		return nil, &source.SourceError{Kind: source.KindBackupTables, Table: table, Err: source.ErrSourceUnavailable}
	}
	out := make([]source.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *memorySource) Close() error { return nil }

func legacyTables() map[string][]source.Row {
	return map[string][]source.Row{
		model.TableKategori: {
			{"id_kategori": "KTG01", "nama_kategori": "Elektronik"},
			{"id_kategori": "KTG02", "nama_kategori": "Pakaian"},
		},
		model.TableBarang: {
			{"id_barang": "BRG0001", "nama_barang": "Televisi", "satuan": "unit", "id_kategori": "KTG01"},
		},
		model.TableKurir: {
			{"id_kurir": "KRR01", "nama_kurir": "Andi", "jenis_kelamin": "L", "telepon": "081298765432", "password": "plaintext"},
		},
		model.TablePelanggan: {
			{"id_pelanggan": "PLG0001", "nama_pelanggan": "Budi", "telepon": "081234567890", "alamat": "Jl. Merdeka 1"},
		},
		model.TablePengiriman: {
			{"no_pengiriman": "PGR20240115001", "tanggal": "2024-01-15", "id_pelanggan": "PLG0001", "id_kurir": "KRR01", "status": "2"},
		},
		model.TableDetailPengiriman: {
			{"id": nil, "no_pengiriman": "PGR20240115001", "id_barang": "BRG0001", "jumlah": "3.00"},
		},
	}
}

func newTestMigrator(t *testing.T, conn *db.Connector, plan Plan) *Migrator {
	t.Helper()
	return NewMigrator(conn, Options{CourierPassword: "kurir123", BcryptCost: bcrypt.MinCost, Plan: plan}, metrics.NewMetricsStore(), zaptest.NewLogger(t))
}

func TestDefaultPlan_Validate(t *testing.T) {
	plan := DefaultPlan()
	require.NoError(t, plan.Validate())
	assert.Equal(t, []string{"kategori", "barang", "pelanggan", "kurir", "pengiriman", "detail_pengiriman"}, plan.Tables())
}

func TestPlan_ValidateRejectsBadOrder(t *testing.T) {
	plan := DefaultPlan()
	// barang sebelum kategori
	plan[0], plan[1] = plan[1], plan[0]
	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"barang" depends on "kategori"`)

	dup := Plan{{Name: "kategori", PrimaryKey: "id_kategori"}, {Name: "kategori", PrimaryKey: "id_kategori"}}
	assert.ErrorContains(t, dup.Validate(), "twice")

	assert.Error(t, Plan{{Name: "kategori"}}.Validate())
}

func TestExactInt(t *testing.T) {
	testCases := []struct {
		name    string
		in      interface{}
		want    int64
		wantErr bool
	}{
		{"Int64", int64(5), 5, false},
		{"String", " 12 ", 12, false},
		{"Trailing zeros", "3.00", 3, false},
		{"Exponent", "1e2", 100, false},
		{"Float integral", float64(4), 4, false},
		{"Bytes", []byte("-2"), -2, false},
		{"Fraction", "2.5", 0, true},
		{"Float fraction", 0.1, 0, true},
		{"Not a number", "dua", 0, true},
		{"Empty", "", 0, true},
		{"Infinity", "Inf", 0, true},
		{"Unsupported", struct{}{}, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExactInt(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLegacyDate(t *testing.T) {
	for _, s := range []string{"2024-01-15", "2024-01-15 08:30:00", "15/01/2024", "15-01-2024"} {
		d, ok := ParseLegacyDate(s)
		require.True(t, ok, s)
		assert.Equal(t, 2024, d.Year())
		assert.Equal(t, time.January, d.Month())
		assert.Equal(t, 15, d.Day())
	}
	_, ok := ParseLegacyDate("kemarin")
	assert.False(t, ok)
}

func TestTransforms(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	tc := &TransformContext{Table: "pengiriman", Now: now}

	row, err := DefaultPlan()[4].Transform(source.Row{
		"no_pengiriman": " PGR20240115001 ",
		"tanggal":       "bukan tanggal",
		"id_pelanggan":  nil,
		"id_kurir":      int64(7),
		"status":        "2.5",
	}, tc)
	require.NoError(t, err)

	assert.Equal(t, "PGR20240115001", row["no_pengiriman"])
	assert.Nil(t, row["tanggal"])
	assert.Equal(t, "", row["id_pelanggan"])
	assert.Equal(t, "7", row["id_kurir"])
	assert.Equal(t, int64(0), row["status"], "status pecahan jadi 0 supaya ditandai validator")
	assert.Equal(t, now, row["created_at"])
	assert.Equal(t, now, row["updated_at"])

	row, err = DefaultPlan()[4].Transform(source.Row{"no_pengiriman": nil, "status": " diterima_sebagian "}, tc)
	require.NoError(t, err)
	assert.Equal(t, "", row["no_pengiriman"], "primary key NULL jadi kosong supaya cek keberadaan tetap jalan")
	assert.Equal(t, int64(model.StatusDiterimaSebagian), row["status"])

	row, err = DefaultPlan()[4].Transform(source.Row{"status": "Hilang"}, tc)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row["status"], "label tidak dikenal jadi 0")

	// kurir tanpa hash: error pemrograman
	_, err = DefaultPlan()[3].Transform(source.Row{"id_kurir": "KRR01"}, &TransformContext{Now: now})
	assert.Error(t, err)
}

func TestWriter_UpsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewTestDB(t)
	w := NewWriter(conn)

	row := source.Row{"id_kategori": "KTG01", "nama_kategori": "Elektronik", "created_at": time.Now(), "updated_at": time.Now()}
	inserted, err := w.UpsertIfAbsent(ctx, model.TableKategori, "id_kategori", row)
	require.NoError(t, err)
	assert.True(t, inserted)

	// baris yang sudah ada tidak ditimpa
	row["nama_kategori"] = "Diubah"
	inserted, err = w.UpsertIfAbsent(ctx, model.TableKategori, "id_kategori", row)
	require.NoError(t, err)
	assert.False(t, inserted)

	var k model.Kategori
	require.NoError(t, conn.DB.First(&k, "id_kategori = ?", "KTG01").Error)
	assert.Equal(t, "Elektronik", k.NamaKategori)

	_, err = w.UpsertIfAbsent(ctx, "tabel_tidak_ada", "id", source.Row{"id": "x"})
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "tabel_tidak_ada", we.Table)
	assert.Equal(t, "x", we.Key)
}

func TestMigrate_FullRunAndIdempotence(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewTestDB(t)
	src := &memorySource{tables: legacyTables()}
	m := newTestMigrator(t, conn, nil)

	log, err := m.Migrate(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"kategori", "barang", "pelanggan", "kurir", "pengiriman", "detail_pengiriman"}, src.fetched)
	assert.Contains(t, log.Lines, "kategori: 2 attempted, 2 inserted")
	assert.Contains(t, log.Lines, "detail_pengiriman: 1 attempted, 1 inserted")

	assert.Equal(t, int64(2), testutil.Count(t, conn, model.TableKategori))
	assert.Equal(t, int64(1), testutil.Count(t, conn, model.TableDetailPengiriman))

	var p model.Pengiriman
	require.NoError(t, conn.DB.First(&p, "no_pengiriman = ?", "PGR20240115001").Error)
	assert.Equal(t, model.StatusDiterima, p.Status)
	require.NotNil(t, p.Tanggal)
	assert.Equal(t, 15, p.Tanggal.Day())

	var d model.DetailPengiriman
	require.NoError(t, conn.DB.First(&d).Error)
	assert.Equal(t, 3, d.Jumlah)

	var k model.Kurir
	require.NoError(t, conn.DB.First(&k, "id_kurir = ?", "KRR01").Error)
	require.NotNil(t, k.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*k.Password), []byte("kurir123")), "password kurir harus bcrypt dari default")

	// run kedua: tidak ada yang disisipkan
	src.fetched = nil
	log, err = m.Migrate(ctx, src)
	require.NoError(t, err)
	for _, table := range m.Plan().Tables() {
		assert.Contains(t, log.Lines, fmt.Sprintf("%s: %d attempted, 0 inserted", table, len(legacyTables()[table])))
	}
	assert.Equal(t, int64(1), testutil.Count(t, conn, model.TableDetailPengiriman), "detail tanpa id di-dedup lewat natural key")
}

func TestMigrate_NullPrimaryKeyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewTestDB(t)
	src := &memorySource{tables: map[string][]source.Row{
		model.TableKategori: {{"id_kategori": nil, "nama_kategori": "Tanpa Kode"}},
		model.TablePelanggan: {
			{"id_pelanggan": nil, "nama_pelanggan": "Budi", "telepon": "081234567890", "alamat": "Jl. Merdeka 1"},
		},
		model.TablePengiriman: {
			{"no_pengiriman": nil, "tanggal": "Terkirim", "id_pelanggan": "PLG0001", "id_kurir": "KRR01", "status": "Terkirim"},
		},
	}}
	m := newTestMigrator(t, conn, nil)

	log, err := m.Migrate(ctx, src)
	require.NoError(t, err)
	assert.Contains(t, log.Lines, "kategori: 1 attempted, 1 inserted")

	log, err = m.Migrate(ctx, src)
	require.NoError(t, err)
	assert.Contains(t, log.Lines, "kategori: 1 attempted, 0 inserted")
	assert.Contains(t, log.Lines, "pelanggan: 1 attempted, 0 inserted")
	assert.Contains(t, log.Lines, "pengiriman: 1 attempted, 0 inserted")

	assert.Equal(t, int64(1), testutil.Count(t, conn, model.TableKategori))
	assert.Equal(t, int64(1), testutil.Count(t, conn, model.TablePelanggan))

	var p model.Pengiriman
	require.NoError(t, conn.DB.First(&p, "no_pengiriman = ?", "").Error)
	assert.Equal(t, model.StatusTerkirim, p.Status)
}

func TestMigrate_UnavailableUsesSeed(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewTestDB(t)

	plan := DefaultPlan()
	plan[0].Seed = []source.Row{{"id_kategori": "KTG00", "nama_kategori": "Umum"}}
	tables := legacyTables()
	delete(tables, model.TableKategori)
	delete(tables, model.TableKurir)

	log, err := newTestMigrator(t, conn, plan).Migrate(ctx, &memorySource{tables: tables})
	require.NoError(t, err)

	assert.Contains(t, log.Lines, "kategori: source unavailable, using default seed (1 rows)")
	assert.Contains(t, log.Lines, "kategori: 1 attempted, 1 inserted")
	assert.Contains(t, log.Lines, "kurir: source unavailable, using default seed (0 rows)")
	assert.Contains(t, log.Lines, "kurir: 0 attempted, 0 inserted")
	assert.Equal(t, int64(1), testutil.Count(t, conn, model.TableKategori))
}

func TestMigrate_FatalErrorCarriesPartialLog(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewTestDB(t)
	src := &memorySource{tables: legacyTables(), failOn: model.TableKurir}

	log, err := newTestMigrator(t, conn, nil).Migrate(ctx, src)
	require.Error(t, err)

	var me *MigrationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.TableKurir, me.Table)
	assert.Same(t, log, me.Log)
	assert.Contains(t, me.Log.Lines, "kategori: 2 attempted, 2 inserted")
	assert.Contains(t, me.Log.Lines, "pelanggan: 1 attempted, 1 inserted")
	assert.NotContains(t, src.fetched, model.TablePengiriman, "tidak lanjut setelah error fatal")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestMigrate_WriteErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewTestDB(t)
	require.NoError(t, conn.DB.Migrator().DropTable(model.TableBarang))

	_, err := newTestMigrator(t, conn, nil).Migrate(ctx, &memorySource{tables: legacyTables()})
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, model.TableBarang, we.Table)
	assert.Equal(t, "BRG0001", we.Key)
}

func TestMigrate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn := testutil.NewTestDB(t)

	_, err := newTestMigrator(t, conn, nil).Migrate(ctx, &memorySource{tables: legacyTables()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, testutil.Count(t, conn, model.TableKategori))
}
