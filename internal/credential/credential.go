// internal/credential/credential.go
package credential

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/arwahdevops/shipmigrate/internal/db"
	"github.com/arwahdevops/shipmigrate/internal/metrics"
	"github.com/arwahdevops/shipmigrate/internal/model"
)

// Skema password yang dikenali di data lama.
const (
	SchemeBcrypt    = "bcrypt"
	SchemeMD5       = "md5"
	SchemeSHA1      = "sha1"
	SchemePlaintext = "plaintext"
	SchemeEmpty     = "empty"
)

// Options: password default per peran dan kebijakan hashing.
type Options struct {
	AdminPassword     string
	CourierPassword   string
	WarehousePassword string
	BcryptCost        int
	// ForceReset menandai akun yang password-nya diganti default agar wajib ganti saat login.
	ForceReset bool
}

// Manager menjalankan semua operasi kredensial terhadap database tujuan.
type Manager struct {
	db       *gorm.DB
	opts     Options
	migrator Migrator
	metrics  *metrics.Store
	logger   *zap.Logger
	now      func() time.Time

	hashes map[int]string // cache hash default per level, satu kali per Manager
}

func NewManager(conn *db.Connector, opts Options, migrator Migrator, metricsStore *metrics.Store, logger *zap.Logger) *Manager {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Manager{
		db:       conn.DB,
		opts:     opts,
		migrator: migrator,
		metrics:  metricsStore,
		logger:   logger.Named("credential"),
		now:      time.Now,
		hashes:   map[int]string{},
	}
}

// IsBcrypt melaporkan apakah s adalah hash bcrypt yang bisa dibaca.
func IsBcrypt(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// DetectScheme menebak skema penyimpanan password lama.
func DetectScheme(s string) string {
	switch {
	case s == "":
		return SchemeEmpty
	case IsBcrypt(s):
		return SchemeBcrypt
	case len(s) == 32 && isHex(s):
		return SchemeMD5
	case len(s) == 40 && isHex(s):
		return SchemeSHA1
	default:
		return SchemePlaintext
	}
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// defaultPassword: level di luar 1..3 memakai default kurir (akunnya akan dinonaktifkan).
func (m *Manager) defaultPassword(level int) string {
	switch level {
	case model.LevelAdmin:
		return m.opts.AdminPassword
	case model.LevelGudang:
		return m.opts.WarehousePassword
	default:
		return m.opts.CourierPassword
	}
}

func (m *Manager) defaultHash(level int) (string, error) {
	if level != model.LevelAdmin && level != model.LevelGudang {
		level = model.LevelKurir
	}
	if h, ok := m.hashes[level]; ok {
		return h, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(m.defaultPassword(level)), m.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash default password for %s: %w", model.LevelName(level), err)
	}
	m.hashes[level] = string(h)
	return string(h), nil
}

func (m *Manager) count(action string, n int) {
	if m.metrics != nil && n > 0 {
		m.metrics.CredentialActionsTotal.WithLabelValues(action).Add(float64(n))
	}
}

// UpdateResult adalah hasil UpdateExistingCredentials.
type UpdateResult struct {
	UsersUpdated    int      `json:"users_updated"`
	CouriersUpdated int      `json:"couriers_updated"`
	Log             []string `json:"log"`
}

// UpdateExistingCredentials mengganti password yang bukan bcrypt (plaintext, MD5, SHA-1)
// dengan bcrypt dari password default peran.
func (m *Manager) UpdateExistingCredentials(ctx context.Context) (*UpdateResult, error) {
	res := &UpdateResult{Log: []string{}}

	var users []model.User
	if err := m.db.WithContext(ctx).Order("id_user").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	var couriers []model.Kurir
	if err := m.db.WithContext(ctx).
		Where("password IS NOT NULL AND password <> ''").
		Order("id_kurir").Find(&couriers).Error; err != nil {
		return nil, fmt.Errorf("load couriers: %w", err)
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range users {
			scheme := DetectScheme(u.Password)
			if scheme == SchemeBcrypt {
				continue
			}
			hash, err := m.defaultHash(u.Level)
			if err != nil {
				return err
			}
			updates := map[string]interface{}{"password": hash, "updated_at": m.now()}
			if m.opts.ForceReset {
				updates["must_change_password"] = true
			}
			if err := tx.Model(&model.User{}).Where("id_user = ?", u.IDUser).Updates(updates).Error; err != nil {
				return fmt.Errorf("update user %s: %w", u.IDUser, err)
			}
			res.UsersUpdated++
			m.logger.Info("Upgraded user password", zap.String("id_user", u.IDUser), zap.String("previous_scheme", scheme))
		}

		for _, k := range couriers {
			if IsBcrypt(*k.Password) {
				continue
			}
			hash, err := m.defaultHash(model.LevelKurir)
			if err != nil {
				return err
			}
			if err := tx.Model(&model.Kurir{}).Where("id_kurir = ?", k.IDKurir).
				Updates(map[string]interface{}{"password": hash, "updated_at": m.now()}).Error; err != nil {
				return fmt.Errorf("update courier %s: %w", k.IDKurir, err)
			}
			res.CouriersUpdated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.count("rehashed_user", res.UsersUpdated)
	m.count("rehashed_courier", res.CouriersUpdated)
	res.Log = append(res.Log, fmt.Sprintf("Credentials updated: %d users, %d couriers", res.UsersUpdated, res.CouriersUpdated))
	if m.opts.ForceReset && res.UsersUpdated > 0 {
		res.Log = append(res.Log, fmt.Sprintf("%d users must change their password at next login", res.UsersUpdated))
	}
	if res.UsersUpdated+res.CouriersUpdated > 0 {
		m.logger.Warn("Accounts now share role default passwords; distribute and rotate them",
			zap.Int("users", res.UsersUpdated), zap.Int("couriers", res.CouriersUpdated), zap.Bool("force_reset", m.opts.ForceReset))
	}
	return res, nil
}

// DefaultAccount adalah akun peran bawaan.
type DefaultAccount struct {
	Username string
	Level    int
}

// DefaultAccounts: admin, kurir, gudang.
func DefaultAccounts() []DefaultAccount {
	return []DefaultAccount{
		{Username: "admin", Level: model.LevelAdmin},
		{Username: "kurir", Level: model.LevelKurir},
		{Username: "gudang", Level: model.LevelGudang},
	}
}

type DefaultsResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
	Log     []string `json:"log"`
}

// CreateDefaultAccounts membuat akun bawaan yang username-nya belum ada.
func (m *Manager) CreateDefaultAccounts(ctx context.Context) (*DefaultsResult, error) {
	res := &DefaultsResult{Created: []string{}, Skipped: []string{}, Log: []string{}}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := newIDAllocator(tx)
		if err != nil {
			return err
		}
		for _, acc := range DefaultAccounts() {
			var n int64
			if err := tx.Model(&model.User{}).Where("username = ?", acc.Username).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				res.Skipped = append(res.Skipped, acc.Username)
				continue
			}
			hash, err := m.defaultHash(acc.Level)
			if err != nil {
				return err
			}
			u := &model.User{
				IDUser:             ids.next(),
				Username:           acc.Username,
				Password:           hash,
				Level:              acc.Level,
				IsActive:           true,
				MustChangePassword: m.opts.ForceReset,
			}
			if err := tx.Create(u).Error; err != nil {
				return fmt.Errorf("create default account %s: %w", acc.Username, err)
			}
			res.Created = append(res.Created, acc.Username)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.count("default_created", len(res.Created))
	res.Log = append(res.Log, fmt.Sprintf("Default accounts: created [%s], skipped [%s]",
		strings.Join(res.Created, ", "), strings.Join(res.Skipped, ", ")))
	m.logger.Info("Default accounts ensured", zap.Strings("created", res.Created), zap.Strings("skipped", res.Skipped))
	return res, nil
}

// idAllocator memberi id_user U0001.. yang belum terpakai.
type idAllocator struct {
	used map[string]bool
	n    int
}

func newIDAllocator(tx *gorm.DB) (*idAllocator, error) {
	var ids []string
	if err := tx.Model(&model.User{}).Pluck("id_user", &ids).Error; err != nil {
		return nil, fmt.Errorf("load user ids: %w", err)
	}
	a := &idAllocator{used: make(map[string]bool, len(ids))}
	for _, id := range ids {
		a.used[id] = true
	}
	return a, nil
}

func (a *idAllocator) next() string {
	for {
		a.n++
		id := fmt.Sprintf("U%04d", a.n)
		if !a.used[id] {
			a.used[id] = true
			return id
		}
	}
}
