package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/config"
)

// VaultManager implements the SecretManager interface for HashiCorp Vault (KV v2).
type VaultManager struct {
	client    *vault.Client
	mountPath string
	enabled   bool
	logger    *zap.Logger
}

func NewVaultManager(cfg *config.Config, baseLogger *zap.Logger) (*VaultManager, error) {
	log := baseLogger.Named("vault-manager")
	if !cfg.VaultEnabled {
		log.Debug("Vault secret manager is disabled via configuration.")
		return &VaultManager{logger: log}, nil
	}

	log.Info("Initializing Vault secret manager", zap.String("address", cfg.VaultAddr))

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.VaultAddr
	vConfig.Timeout = 10 * time.Second

	if err := vConfig.ConfigureTLS(&vault.TLSConfig{
		CACert:   cfg.VaultCACert,
		Insecure: cfg.VaultSkipVerify,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure Vault TLS: %w", err)
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.VaultToken != "" {
		client.SetToken(cfg.VaultToken)
	} else {
		log.Warn("Vault is enabled, but no VAULT_TOKEN provided; requests will likely be denied.")
	}

	return &VaultManager{
		client:    client,
		mountPath: cfg.VaultMountPath,
		enabled:   true,
		logger:    log,
	}, nil
}

func (m *VaultManager) IsEnabled() bool {
	return m != nil && m.enabled && m.client != nil
}

// GetCredentials retrieves secrets from Vault KV v2 engine.
func (m *VaultManager) GetCredentials(ctx context.Context, path, usernameKey, passwordKey string) (*Credentials, error) {
	if !m.IsEnabled() {
		return nil, errors.New("vault manager is not enabled or not initialized")
	}
	if path == "" {
		return nil, errors.New("vault secret path cannot be empty")
	}
	if usernameKey == "" {
		usernameKey = "username"
	}
	if passwordKey == "" {
		passwordKey = "password"
	}

	log := m.logger.With(zap.String("vault_path", path))

	secret, err := m.client.KVv2(m.mountPath).Get(ctx, path)
	if err != nil {
		var respErr *vault.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("secret '%s' not found in Vault: %w", path, err)
		}
		log.Error("Failed to read secret from Vault", zap.Error(err))
		return nil, fmt.Errorf("failed to read secret '%s' from Vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret data for '%s' is empty", path)
	}

	creds, err := credentialsFromData(secret.Data, usernameKey, passwordKey)
	if err != nil {
		return nil, fmt.Errorf("secret '%s': %w", path, err)
	}
	log.Info("Successfully retrieved credentials from Vault")
	return creds, nil
}

// credentialsFromData mengambil username/password dari map data KV v2.
func credentialsFromData(data map[string]interface{}, usernameKey, passwordKey string) (*Credentials, error) {
	passwordVal, ok := data[passwordKey]
	if !ok || passwordVal == nil {
		return nil, fmt.Errorf("password key '%s' not found or is null", passwordKey)
	}
	password, ok := passwordVal.(string)
	if !ok || password == "" {
		return nil, fmt.Errorf("password value for key '%s' is not a non-empty string", passwordKey)
	}

	username := ""
	if v, ok := data[usernameKey].(string); ok {
		username = v
	}
	return &Credentials{Username: username, Password: password}, nil
}
