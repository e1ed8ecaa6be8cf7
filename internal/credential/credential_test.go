package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/source"
	"github.com/arwahdevops/shipmigrate/internal/testutil"
)

type stubMigrator struct {
	log *migration.Log
	err error
}

func (s *stubMigrator) Migrate(context.Context, source.Source) (*migration.Log, error) {
	return s.log, s.err
}

func testOptions() Options {
	return Options{
		AdminPassword:     "admin123",
		CourierPassword:   "kurir123",
		WarehousePassword: "gudang123",
		BcryptCost:        bcrypt.MinCost,
	}
}

func newManager(t *testing.T, conn *db.Connector, opts Options, mig Migrator) *Manager {
	t.Helper()
	return NewManager(conn, opts, mig, metrics.NewMetricsStore(), zaptest.NewLogger(t))
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func loadUser(t *testing.T, conn *db.Connector, username string) model.User {
	t.Helper()
	var u model.User
	require.NoError(t, conn.DB.First(&u, "username = ?", username).Error)
	return u
}

func TestDetectScheme(t *testing.T) {
	assert.Equal(t, SchemeBcrypt, DetectScheme(mustHash(t, "x")))
	assert.Equal(t, SchemeMD5, DetectScheme("5f4dcc3b5aa765d61d8327deb882cf99"))
	assert.Equal(t, SchemeSHA1, DetectScheme("5baa61e4c9b93f3f0682250b6cf8331b7ee68fd8"))
	assert.Equal(t, SchemePlaintext, DetectScheme("password"))
	assert.Equal(t, SchemeEmpty, DetectScheme(""))
	assert.False(t, IsBcrypt("$2y$10$short"))
}

func TestUpdateExistingCredentials(t *testing.T) {
	conn := testutil.NewTestDB(t)
	kept := mustHash(t, "rahasia")
	testutil.Create(t, conn,
		&model.User{IDUser: "U0001", Username: "budi", Password: "5f4dcc3b5aa765d61d8327deb882cf99", Level: model.LevelAdmin, IsActive: true},
		&model.User{IDUser: "U0002", Username: "sari", Password: kept, Level: model.LevelGudang, IsActive: true},
		&model.User{IDUser: "U0003", Username: "andi", Password: "plain", Level: model.LevelGudang, IsActive: true},
		&model.Kurir{IDKurir: "KRR01", NamaKurir: "Andi", JenisKelamin: "L", Telepon: "081298765432", Password: testutil.Ptr("kurir")},
		&model.Kurir{IDKurir: "KRR02", NamaKurir: "Dedi", JenisKelamin: "L", Telepon: "081298765433"},
	)

	opts := testOptions()
	opts.ForceReset = true
	res, err := newManager(t, conn, opts, nil).UpdateExistingCredentials(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.UsersUpdated)
	assert.Equal(t, 1, res.CouriersUpdated)
	assert.Equal(t, "Credentials updated: 2 users, 1 couriers", res.Log[0])

	budi := loadUser(t, conn, "budi")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(budi.Password), []byte("admin123")))
	assert.True(t, budi.MustChangePassword)

	andi := loadUser(t, conn, "andi")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(andi.Password), []byte("gudang123")))

	sari := loadUser(t, conn, "sari")
	assert.Equal(t, kept, sari.Password, "hash bcrypt yang sudah ada tidak disentuh")
	assert.False(t, sari.MustChangePassword)

	var k model.Kurir
	require.NoError(t, conn.DB.First(&k, "id_kurir = ?", "KRR01").Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*k.Password), []byte("kurir123")))
	require.NoError(t, conn.DB.First(&k, "id_kurir = ?", "KRR02").Error)
	assert.Nil(t, k.Password)
}

func TestCreateDefaultAccounts_Idempotent(t *testing.T) {
	conn := testutil.NewTestDB(t)
	testutil.Create(t, conn, &model.User{IDUser: "U0001", Username: "admin", Password: mustHash(t, "lama"), Level: model.LevelAdmin, IsActive: true})

	m := newManager(t, conn, testOptions(), nil)
	res, err := m.CreateDefaultAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kurir", "gudang"}, res.Created)
	assert.Equal(t, []string{"admin"}, res.Skipped)
	assert.Equal(t, "Default accounts: created [kurir, gudang], skipped [admin]", res.Log[0])

	kurir := loadUser(t, conn, "kurir")
	assert.Equal(t, "U0002", kurir.IDUser)
	assert.Equal(t, model.LevelKurir, kurir.Level)
	assert.True(t, kurir.IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(kurir.Password), []byte("kurir123")))
	gudang := loadUser(t, conn, "gudang")
	assert.Equal(t, "U0003", gudang.IDUser)
	assert.Equal(t, model.LevelGudang, gudang.Level)

	res, err = m.CreateDefaultAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, int64(3), testutil.Count(t, conn, model.TableUsers))
}

func TestSetupPermissions(t *testing.T) {
	conn := testutil.NewTestDB(t)
	courierHash := mustHash(t, "milik-andi")
	testutil.Create(t, conn,
		&model.User{IDUser: "U0001", Username: "admin", Password: mustHash(t, "a"), Level: model.LevelAdmin, IsActive: true},
		&model.User{IDUser: "U0002", Username: "tamu", Password: mustHash(t, "b"), Level: 9, IsActive: true},
		&model.User{IDUser: "U0003", Username: "lama", Password: mustHash(t, "c"), Level: model.LevelKurir, IsActive: true, IDKurir: testutil.Ptr("KRR99")},
		&model.Kurir{IDKurir: "KRR01", NamaKurir: "Andi", JenisKelamin: "L", Telepon: "081298765432", Username: testutil.Ptr("andi"), Password: &courierHash},
		&model.Kurir{IDKurir: "KRR02", NamaKurir: "Sari", JenisKelamin: "P", Telepon: "081298765433", Username: testutil.Ptr("admin")},
		&model.Kurir{IDKurir: "KRR03", NamaKurir: "Dedi", JenisKelamin: "L", Telepon: "081298765434"},
	)

	res, err := newManager(t, conn, testOptions(), nil).SetupPermissions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Deactivated)
	assert.Equal(t, 1, res.AccountsCreated)
	assert.Equal(t, 1, res.LinksCleared)
	assert.Contains(t, res.Log, `kurir[id_kurir=KRR02]: username "admin" belongs to a admin account, not linked`)

	assert.False(t, loadUser(t, conn, "tamu").IsActive)
	assert.Nil(t, loadUser(t, conn, "lama").IDKurir)

	andi := loadUser(t, conn, "andi")
	assert.Equal(t, "U0004", andi.IDUser)
	assert.Equal(t, model.LevelKurir, andi.Level)
	assert.Equal(t, courierHash, andi.Password, "hash bcrypt kurir dipakai ulang")
	require.NotNil(t, andi.IDKurir)
	assert.Equal(t, "KRR01", *andi.IDKurir)

	var k model.Kurir
	require.NoError(t, conn.DB.First(&k, "id_kurir = ?", "KRR01").Error)
	require.NotNil(t, k.IDUser)
	assert.Equal(t, "U0004", *k.IDUser)

	// run kedua tidak membuat akun baru
	res, err = newManager(t, conn, testOptions(), nil).SetupPermissions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.AccountsCreated)
	assert.Zero(t, res.AccountsLinked)
	assert.Zero(t, res.Deactivated)
}

func TestSetupPermissions_DuplicateCourierUsername(t *testing.T) {
	conn := testutil.NewTestDB(t)
	testutil.Create(t, conn,
		&model.Kurir{IDKurir: "KRR01", NamaKurir: "Andi", JenisKelamin: "L", Telepon: "081298765432", Username: testutil.Ptr("andi")},
		&model.Kurir{IDKurir: "KRR02", NamaKurir: "Andi S", JenisKelamin: "L", Telepon: "081298765433", Username: testutil.Ptr("andi")},
	)
	m := newManager(t, conn, testOptions(), nil)

	res, err := m.SetupPermissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.AccountsCreated)
	assert.Zero(t, res.AccountsLinked)
	assert.Contains(t, res.Log, `kurir[id_kurir=KRR02]: username "andi" is already linked to kurir KRR01, not linked`)

	andi := loadUser(t, conn, "andi")
	require.NotNil(t, andi.IDKurir)
	assert.Equal(t, "KRR01", *andi.IDKurir)

	var k2 model.Kurir
	require.NoError(t, conn.DB.First(&k2, "id_kurir = ?", "KRR02").Error)
	assert.Nil(t, k2.IDUser)

	val, err := m.ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.False(t, val.Valid)
	assert.Equal(t, []string{`kurir: duplicate username "andi" used by 2 couriers`}, val.Issues)
}

func TestValidateCredentials_OneWayCourierLinks(t *testing.T) {
	conn := testutil.NewTestDB(t)
	testutil.Create(t, conn,
		&model.User{IDUser: "U0001", Username: "andi", Password: mustHash(t, "a"), Level: model.LevelKurir, IsActive: true, IDKurir: testutil.Ptr("KRR02")},
		&model.Kurir{IDKurir: "KRR01", NamaKurir: "Andi", JenisKelamin: "L", Telepon: "081298765432", IDUser: testutil.Ptr("U0001")},
		&model.Kurir{IDKurir: "KRR02", NamaKurir: "Sari", JenisKelamin: "P", Telepon: "081298765433"},
	)

	res, err := newManager(t, conn, testOptions(), nil).ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{
		"kurir[id_kurir=KRR01]: id_user U0001 does not link back to this courier",
		"users[id_user=U0001]: id_kurir KRR02 does not link back to this account",
	}, res.Issues)
}

func TestValidateCredentials(t *testing.T) {
	conn := testutil.NewTestDB(t)
	testutil.Create(t, conn,
		&model.User{IDUser: "U0001", Username: "admin", Password: mustHash(t, "a"), Level: model.LevelAdmin, IsActive: true},
		&model.User{IDUser: "U0002", Username: "admin", Password: mustHash(t, "b"), Level: model.LevelGudang, IsActive: true},
		&model.User{IDUser: "U0003", Username: "", Password: "plain", Level: 7, IsActive: true},
		&model.Kurir{IDKurir: "KRR01", NamaKurir: "Andi", JenisKelamin: "L", Telepon: "081298765432", Password: testutil.Ptr("5baa61e4c9b93f3f0682250b6cf8331b7ee68fd8")},
	)

	res, err := newManager(t, conn, testOptions(), nil).ValidateCredentials(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, int64(3), res.TotalUsers)
	assert.Equal(t, []string{
		"users[id_user=U0003]: password is not a bcrypt hash (plaintext)",
		"users[id_user=U0003]: username is empty",
		"users[id_user=U0003]: invalid level 7",
		`users: duplicate username "admin" used by 2 accounts`,
		"kurir[id_kurir=KRR01]: password is not a bcrypt hash (sha1)",
	}, res.Issues)
}

func TestCompleteCredentialUpdate(t *testing.T) {
	conn := testutil.NewTestDB(t)
	testutil.Create(t, conn,
		&model.User{IDUser: "U0001", Username: "budi", Password: "plain", Level: model.LevelAdmin, IsActive: true},
	)
	migLog := migration.NewLog()
	migLog.Add("Migration completed: 0 rows inserted")

	res := newManager(t, conn, testOptions(), &stubMigrator{log: migLog}).CompleteCredentialUpdate(context.Background(), nil)
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.Result)
	assert.Empty(t, res.Error)
	assert.True(t, res.Result.Validation.Valid, "issues: %v", res.Result.Validation.Issues)
	assert.Equal(t, int64(4), res.Result.Validation.TotalUsers)
	assert.Equal(t, "Migration completed: 0 rows inserted", res.Log[0])
	assert.Equal(t, "Credential validation: 4 users, 0 issues (VALID)", res.Log[len(res.Log)-1])
}

func TestCompleteCredentialUpdate_MigrationFailure(t *testing.T) {
	conn := testutil.NewTestDB(t)
	partial := migration.NewLog()
	partial.Add("kategori: 2 attempted, 2 inserted")
	partial.Add("FAILED at barang: boom")
	mig := &stubMigrator{log: partial, err: &migration.MigrationError{Log: partial, Table: "barang", Err: errors.New("boom")}}

	res := newManager(t, conn, testOptions(), mig).CompleteCredentialUpdate(context.Background(), nil)
	assert.False(t, res.Success)
	assert.Nil(t, res.Result)
	assert.Contains(t, res.Error, "migration failed at table barang: boom")
	assert.Contains(t, res.Log, "kategori: 2 attempted, 2 inserted")
	assert.Zero(t, testutil.Count(t, conn, model.TableUsers), "langkah berikutnya tidak dijalankan")
}
