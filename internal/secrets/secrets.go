// Package secrets loads broker gateway credentials from HashiCorp Vault.
// When Vault is disabled, credentials come from the local configuration and
// are cached in memory only.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// BrokerCredentials are the secrets needed to talk to the broker gateway.
type BrokerCredentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// Config holds Vault connection settings.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
}

// Store reads broker credentials from Vault's KV v2 engine with an in-memory
// cache.
type Store struct {
	client *api.Client
	config Config
	mu     sync.RWMutex
	cache  map[string]*BrokerCredentials
}

// NewStore creates a credential store. A disabled config yields a cache-only
// store fed via Put.
func NewStore(cfg Config) (*Store, error) {
	s := &Store{config: cfg, cache: make(map[string]*BrokerCredentials)}
	if !cfg.Enabled {
		return s, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	s.client = client
	return s, nil
}

// Put seeds credentials for account into the local cache.
func (s *Store) Put(account string, creds BrokerCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[account] = &creds
}

// Get returns the credentials for account, from cache first, then Vault.
func (s *Store) Get(ctx context.Context, account string) (*BrokerCredentials, error) {
	s.mu.RLock()
	cached, ok := s.cache[account]
	s.mu.RUnlock()
	if ok {
		out := *cached
		return &out, nil
	}

	if s.client == nil {
		return nil, fmt.Errorf("no credentials for account %s", account)
	}

	path := fmt.Sprintf("%s/data/%s/%s", s.config.MountPath, s.config.SecretPath, account)
	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read vault secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no vault secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected vault secret shape at %s", path)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("re-encode vault secret: %w", err)
	}
	var creds BrokerCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("decode vault secret: %w", err)
	}

	s.mu.Lock()
	s.cache[account] = &creds
	s.mu.Unlock()
	out := creds
	return &out, nil
}
