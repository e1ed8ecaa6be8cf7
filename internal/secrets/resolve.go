package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Lookup menjelaskan di mana kredensial sebuah database dicari.
type Lookup struct {
	Label       string // destination / legacy, dipakai di log & pesan error
	EnvPrefix   string // DST / LEGACY
	User        string
	Password    string
	SecretPath  string
	UsernameKey string
	PasswordKey string
}

// Resolve memuat kredensial dari env var, atau dari secret manager jika password env kosong.
func Resolve(ctx context.Context, l Lookup, managers []SecretManager, logger *zap.Logger) (*Credentials, error) {
	log := logger.With(zap.String("db", l.Label))

	if l.Password != "" {
		return &Credentials{Username: l.User, Password: l.Password}, nil
	}

	if l.SecretPath == "" {
		// sqlite / trust auth: password kosong itu sah
		log.Debug("No password and no secret path configured, connecting without password.")
		return &Credentials{Username: l.User}, nil
	}

	if len(managers) == 0 {
		log.Warn("Secret path is configured, but no secret managers are active/enabled.")
	}
	for _, sm := range managers {
		if !sm.IsEnabled() {
			continue
		}
		getCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		creds, err := sm.GetCredentials(getCtx, l.SecretPath, l.UsernameKey, l.PasswordKey)
		cancel()
		if err != nil {
			log.Warn("Failed to retrieve credentials from secret manager. Trying next if available.",
				zap.String("manager_type", fmt.Sprintf("%T", sm)),
				zap.Error(err))
			continue
		}
		if creds.Username == "" {
			creds.Username = l.User
		}
		if creds.Username == "" {
			return nil, fmt.Errorf("password retrieved for %s, but username is missing in both secret and %s_USER", l.Label, strings.ToUpper(l.EnvPrefix))
		}
		return creds, nil
	}

	return nil, fmt.Errorf("could not load credentials for %s DB. Ensure %s_PASSWORD or Vault (VAULT_ENABLED=true and %s_SECRET_PATH) is configured correctly",
		l.Label, strings.ToUpper(l.EnvPrefix), strings.ToUpper(l.EnvPrefix))
}
