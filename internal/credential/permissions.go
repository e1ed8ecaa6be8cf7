package credential

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arwahdevops/shipmigrate/internal/model"
)

var validLevels = []int{model.LevelAdmin, model.LevelKurir, model.LevelGudang}

type PermissionsResult struct {
	Deactivated     int      `json:"deactivated"`
	AccountsCreated int      `json:"accounts_created"`
	AccountsLinked  int      `json:"accounts_linked"`
	LinksCleared    int      `json:"links_cleared"`
	Log             []string `json:"log"`
}

// SetupPermissions:
//   - akun dengan level di luar 1..3 dinonaktifkan
//   - users.id_kurir yang menunjuk kurir yang tidak ada dikosongkan
//   - kurir yang punya username tapi belum punya akun dibuatkan akun level 2, ditautkan dua arah
//   - akun yang sudah tertaut ke kurir lain tidak ditimpa (username kurir ganda)
func (m *Manager) SetupPermissions(ctx context.Context) (*PermissionsResult, error) {
	res := &PermissionsResult{Log: []string{}}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deactivate := tx.Model(&model.User{}).
			Where("level NOT IN ? AND is_active = ?", validLevels, true).
			Updates(map[string]interface{}{"is_active": false, "updated_at": m.now()})
		if deactivate.Error != nil {
			return fmt.Errorf("deactivate invalid levels: %w", deactivate.Error)
		}
		res.Deactivated = int(deactivate.RowsAffected)

		// tautan ke kurir yang tidak ada dikosongkan dulu supaya akun itu bisa ditautkan ulang
		cleared := tx.Model(&model.User{}).
			Where("id_kurir IS NOT NULL AND id_kurir <> '' AND id_kurir NOT IN (?)", tx.Model(&model.Kurir{}).Select("id_kurir")).
			Updates(map[string]interface{}{"id_kurir": nil, "updated_at": m.now()})
		if cleared.Error != nil {
			return fmt.Errorf("clear dangling courier links: %w", cleared.Error)
		}
		res.LinksCleared = int(cleared.RowsAffected)

		return m.linkCourierAccounts(tx, res)
	})
	if err != nil {
		return nil, err
	}

	m.count("deactivated", res.Deactivated)
	m.count("account_created", res.AccountsCreated)
	m.count("account_linked", res.AccountsLinked)
	m.count("link_cleared", res.LinksCleared)
	res.Log = append(res.Log, fmt.Sprintf("Permissions: %d deactivated, %d courier accounts created, %d linked, %d dangling links cleared",
		res.Deactivated, res.AccountsCreated, res.AccountsLinked, res.LinksCleared))
	return res, nil
}

func (m *Manager) linkCourierAccounts(tx *gorm.DB, res *PermissionsResult) error {
	var couriers []model.Kurir
	if err := tx.Where("username IS NOT NULL AND username <> ''").Order("id_kurir").Find(&couriers).Error; err != nil {
		return fmt.Errorf("load couriers with username: %w", err)
	}
	if len(couriers) == 0 {
		return nil
	}
	ids, err := newIDAllocator(tx)
	if err != nil {
		return err
	}

	for _, k := range couriers {
		var existing []model.User
		if err := tx.Where("username = ?", *k.Username).Order("id_user").Find(&existing).Error; err != nil {
			return err
		}

		if len(existing) > 0 {
			u := existing[0]
			if u.Level != model.LevelKurir {
				res.Log = append(res.Log, fmt.Sprintf("kurir[id_kurir=%s]: username %q belongs to a %s account, not linked",
					k.IDKurir, *k.Username, model.LevelName(u.Level)))
				continue
			}
			if u.IDKurir != nil && *u.IDKurir != "" && *u.IDKurir != k.IDKurir {
				res.Log = append(res.Log, fmt.Sprintf("kurir[id_kurir=%s]: username %q is already linked to kurir %s, not linked",
					k.IDKurir, *k.Username, *u.IDKurir))
				continue
			}
			linked := k.IDUser != nil && *k.IDUser == u.IDUser && u.IDKurir != nil && *u.IDKurir == k.IDKurir
			if linked {
				continue
			}
			if err := m.link(tx, k.IDKurir, u.IDUser); err != nil {
				return err
			}
			res.AccountsLinked++
			continue
		}

		password := ""
		if k.Password != nil && IsBcrypt(*k.Password) {
			password = *k.Password
		} else if password, err = m.defaultHash(model.LevelKurir); err != nil {
			return err
		}
		u := &model.User{
			IDUser:             ids.next(),
			Username:           *k.Username,
			Password:           password,
			Level:              model.LevelKurir,
			IsActive:           true,
			IDKurir:            &k.IDKurir,
			MustChangePassword: m.opts.ForceReset,
		}
		if err := tx.Create(u).Error; err != nil {
			return fmt.Errorf("create account for courier %s: %w", k.IDKurir, err)
		}
		if err := m.link(tx, k.IDKurir, u.IDUser); err != nil {
			return err
		}
		res.AccountsCreated++
		m.logger.Info("Created courier account", zap.String("id_kurir", k.IDKurir), zap.String("id_user", u.IDUser))
	}
	return nil
}

func (m *Manager) link(tx *gorm.DB, idKurir, idUser string) error {
	if err := tx.Model(&model.Kurir{}).Where("id_kurir = ?", idKurir).
		Updates(map[string]interface{}{"id_user": idUser, "updated_at": m.now()}).Error; err != nil {
		return fmt.Errorf("link courier %s: %w", idKurir, err)
	}
	if err := tx.Model(&model.User{}).Where("id_user = ?", idUser).
		Updates(map[string]interface{}{"id_kurir": idKurir, "updated_at": m.now()}).Error; err != nil {
		return fmt.Errorf("link user %s: %w", idUser, err)
	}
	return nil
}

// ValidationResult adalah hasil ValidateCredentials.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	TotalUsers int64    `json:"total_users"`
	Issues     []string `json:"issues"`
}

// ValidateCredentials memeriksa hash, username ganda/kosong, level, dan password kurir.
// Akun nonaktif dengan level tidak valid tidak dilaporkan: sudah ditangani SetupPermissions.
func (m *Manager) ValidateCredentials(ctx context.Context) (*ValidationResult, error) {
	res := &ValidationResult{Issues: []string{}}
	dbc := m.db.WithContext(ctx)

	if err := dbc.Model(&model.User{}).Count(&res.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	var users []model.User
	if err := dbc.Order("id_user").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		if scheme := DetectScheme(u.Password); scheme != SchemeBcrypt {
			res.Issues = append(res.Issues, fmt.Sprintf("users[id_user=%s]: password is not a bcrypt hash (%s)", u.IDUser, scheme))
		}
		if u.Username == "" {
			res.Issues = append(res.Issues, fmt.Sprintf("users[id_user=%s]: username is empty", u.IDUser))
		}
		if u.IsActive && !isValidLevel(u.Level) {
			res.Issues = append(res.Issues, fmt.Sprintf("users[id_user=%s]: invalid level %d", u.IDUser, u.Level))
		}
	}

	var dups []usernameCount
	if err := dbc.Model(&model.User{}).
		Select("username, COUNT(*) AS total").
		Where("username <> ''").
		Group("username").
		Having("COUNT(*) > ?", 1).
		Order("username").
		Scan(&dups).Error; err != nil {
		return nil, fmt.Errorf("find duplicate usernames: %w", err)
	}
	for _, d := range dups {
		res.Issues = append(res.Issues, fmt.Sprintf("users: duplicate username %q used by %d accounts", d.Username, d.Total))
	}

	var couriers []model.Kurir
	if err := dbc.Where("password IS NOT NULL AND password <> ''").Order("id_kurir").Find(&couriers).Error; err != nil {
		return nil, fmt.Errorf("load courier passwords: %w", err)
	}
	for _, k := range couriers {
		if scheme := DetectScheme(*k.Password); scheme != SchemeBcrypt {
			res.Issues = append(res.Issues, fmt.Sprintf("kurir[id_kurir=%s]: password is not a bcrypt hash (%s)", k.IDKurir, scheme))
		}
	}

	courierIssues, err := courierLinkIssues(dbc, users)
	if err != nil {
		return nil, err
	}
	res.Issues = append(res.Issues, courierIssues...)

	res.Valid = len(res.Issues) == 0
	m.logger.Info("Credential validation finished", zap.Bool("valid", res.Valid), zap.Int("issues", len(res.Issues)))
	return res, nil
}

// courierLinkIssues melaporkan username kurir ganda dan tautan kurir<->users yang tidak dua arah.
func courierLinkIssues(dbc *gorm.DB, users []model.User) ([]string, error) {
	var issues []string

	var dups []usernameCount
	if err := dbc.Model(&model.Kurir{}).
		Select("username, COUNT(*) AS total").
		Where("username IS NOT NULL AND username <> ''").
		Group("username").
		Having("COUNT(*) > ?", 1).
		Order("username").
		Scan(&dups).Error; err != nil {
		return nil, fmt.Errorf("find duplicate courier usernames: %w", err)
	}
	for _, d := range dups {
		issues = append(issues, fmt.Sprintf("kurir: duplicate username %q used by %d couriers", d.Username, d.Total))
	}

	var couriers []model.Kurir
	if err := dbc.Order("id_kurir").Find(&couriers).Error; err != nil {
		return nil, fmt.Errorf("load couriers: %w", err)
	}
	courierByID := make(map[string]model.Kurir, len(couriers))
	for _, k := range couriers {
		courierByID[k.IDKurir] = k
	}
	userByID := make(map[string]model.User, len(users))
	for _, u := range users {
		userByID[u.IDUser] = u
	}

	for _, k := range couriers {
		if k.IDUser == nil || *k.IDUser == "" {
			continue
		}
		u, ok := userByID[*k.IDUser]
		if !ok || u.IDKurir == nil || *u.IDKurir != k.IDKurir {
			issues = append(issues, fmt.Sprintf("kurir[id_kurir=%s]: id_user %s does not link back to this courier", k.IDKurir, *k.IDUser))
		}
	}
	for _, u := range users {
		if u.IDKurir == nil || *u.IDKurir == "" {
			continue
		}
		k, ok := courierByID[*u.IDKurir]
		if !ok || k.IDUser == nil || *k.IDUser != u.IDUser {
			issues = append(issues, fmt.Sprintf("users[id_user=%s]: id_kurir %s does not link back to this account", u.IDUser, *u.IDKurir))
		}
	}
	return issues, nil
}

type usernameCount struct {
	Username string
	Total    int64
}

func isValidLevel(level int) bool {
	for _, l := range validLevels {
		if l == level {
			return true
		}
	}
	return false
}
