package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection settings
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
	TLSEnabled bool
	CACert     string
}

// Credential represents an advisory provider credential stored in Vault
type Credential struct {
	Provider string `json:"provider"` // claude or openai
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
}

// Client wraps the HashiCorp Vault client for advisory credentials. When
// Vault is disabled it operates on a local in-memory cache only, which is the
// development and paper-trading mode.
type Client struct {
	client *api.Client
	config Config

	mu    sync.RWMutex
	cache map[string]*Credential // provider -> credential
}

// NewClient creates a new Vault client
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*Credential),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*Credential),
	}, nil
}

// StoreCredential stores an advisory provider credential
func (c *Client) StoreCredential(ctx context.Context, cred Credential) error {
	if cred.Provider == "" {
		return fmt.Errorf("credential has no provider")
	}

	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[cred.Provider] = &cred
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"provider": cred.Provider,
			"api_key":  cred.APIKey,
			"model":    cred.Model,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(cred.Provider), secretData); err != nil {
		return fmt.Errorf("failed to store credential in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[cred.Provider] = &cred
	c.mu.Unlock()
	return nil
}

// GetCredential retrieves a provider credential, preferring the cache
func (c *Client) GetCredential(ctx context.Context, provider string) (*Credential, error) {
	c.mu.RLock()
	if cached, ok := c.cache[provider]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("credential for %q not found and vault is disabled", provider)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to read credential from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credential for %q not found", provider)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format for %q", provider)
	}

	cred := &Credential{
		Provider: getString(data, "provider"),
		APIKey:   getString(data, "api_key"),
		Model:    getString(data, "model"),
	}
	if cred.Provider == "" {
		cred.Provider = provider
	}

	c.mu.Lock()
	c.cache[provider] = cred
	c.mu.Unlock()
	return cred, nil
}

// DeleteCredential removes a provider credential
func (c *Client) DeleteCredential(ctx context.Context, provider string) error {
	c.mu.Lock()
	delete(c.cache, provider)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(provider)); err != nil {
		return fmt.Errorf("failed to delete credential from vault: %w", err)
	}
	return nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credential)
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath returns the KV v2 data path for a provider credential
func (c *Client) secretPath(provider string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, provider)
}

// metadataPath returns the KV v2 metadata path for a provider credential
func (c *Client) metadataPath(provider string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, provider)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// NewMockClient creates a disabled, cache-only client for testing
func NewMockClient() *Client {
	return &Client{
		config: Config{Enabled: false},
		cache:  make(map[string]*Credential),
	}
}
