// Package secrets reads service credentials from Azure Key Vault.
package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/momentsapp/moments/internal/logger"
)

// secretFetcher is the part of *azsecrets.Client used here.
type secretFetcher interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// VaultClient wraps the Key Vault client with a TTL cache.
type VaultClient struct {
	client    secretFetcher
	vaultName string
	cacheTTL  time.Duration

	mu    sync.Mutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// VaultConfig holds configuration for the vault client
type VaultConfig struct {
	VaultName string
	CacheTTL  time.Duration
}

// NewVaultClient creates a Key Vault client using DefaultAzureCredential (environment,
// managed identity or Azure CLI login).
func NewVaultClient(cfg *VaultConfig) (*VaultClient, error) {
	if cfg.VaultName == "" {
		return nil, fmt.Errorf("vault name is required")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	vaultURL := fmt.Sprintf("https://%s.vault.azure.net/", cfg.VaultName)
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}

	logger.With(logger.Fields{"vault_url": vaultURL}).Info(context.Background(), "Azure Key Vault client initialized")

	return newVaultClient(client, cfg.VaultName, cfg.CacheTTL), nil
}

func newVaultClient(client secretFetcher, vaultName string, ttl time.Duration) *VaultClient {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &VaultClient{
		client:    client,
		vaultName: vaultName,
		cacheTTL:  ttl,
		cache:     make(map[string]cachedSecret),
	}
}

// GetSecret returns the latest version of a secret.
func (v *VaultClient) GetSecret(ctx context.Context, secretName string) (string, error) {
	v.mu.Lock()
	if cached, ok := v.cache[secretName]; ok {
		if time.Now().Before(cached.expiresAt) {
			v.mu.Unlock()
			return cached.value, nil
		}
		delete(v.cache, secretName)
	}
	v.mu.Unlock()

	resp, err := v.client.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get secret '%s' from vault %s: %w", secretName, v.vaultName, err)
	}
	if resp.Value == nil || *resp.Value == "" {
		return "", fmt.Errorf("secret '%s' in vault %s has no value", secretName, v.vaultName)
	}

	value := *resp.Value
	v.mu.Lock()
	v.cache[secretName] = cachedSecret{value: value, expiresAt: time.Now().Add(v.cacheTTL)}
	v.mu.Unlock()

	logger.With(logger.Fields{"secret_name": secretName, "vault": v.vaultName}).Debug(ctx, "Secret retrieved from Key Vault")
	return value, nil
}

// ClearCache clears all cached secrets
func (v *VaultClient) ClearCache() {
	v.mu.Lock()
	v.cache = make(map[string]cachedSecret)
	v.mu.Unlock()
}
