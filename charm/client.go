// ABOUTME: Charm KV client holding per-agent run settings presets
// ABOUTME: Opened once per process; writes push to the server when auto-sync is on

package charm

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/charm/kv"
)

// kvStore is the part of charm's KV the presets need.
type kvStore interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Keys() ([][]byte, error)
	Sync() error
	Reset() error
}

var (
	defaultClient *Client
	openOnce      sync.Once
	openErr       error
)

// Client serializes access to one KV store.
type Client struct {
	mu       sync.RWMutex
	store    kvStore
	autoSync bool
}

// GetClient opens the process-wide client on first use.
func GetClient() (*Client, error) {
	openOnce.Do(func() {
		cfg, err := LoadConfig()
		if err != nil {
			openErr = fmt.Errorf("failed to load charm config: %w", err)
			return
		}
		defaultClient, openErr = openClient(cfg)
	})
	return defaultClient, openErr
}

func openClient(cfg *Config) (*Client, error) {
	// kv picks the server up from the environment.
	if err := os.Setenv("CHARM_HOST", cfg.Host); err != nil {
		return nil, fmt.Errorf("failed to set charm host: %w", err)
	}

	db, err := kv.OpenWithDefaults(AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}

	if cfg.AutoSync {
		// Pull presets saved on the agent's other devices. Offline is fine.
		_ = db.Sync()
	}
	return newClient(db, cfg.AutoSync), nil
}

func newClient(store kvStore, autoSync bool) *Client {
	return &Client{store: store, autoSync: autoSync}
}

// Sync exchanges changes with the charm server.
func (c *Client) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Sync()
}

func (c *Client) Get(key []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Get(key)
}

func (c *Client) Set(key, value []byte) error {
	return c.write(func(s kvStore) error { return s.Set(key, value) })
}

func (c *Client) Delete(key []byte) error {
	return c.write(func(s kvStore) error { return s.Delete(key) })
}

// write applies op and, with auto-sync on, pushes it while the lock is held
// so a concurrent write cannot interleave with the sync.
func (c *Client) write(op func(kvStore) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := op(c.store); err != nil {
		return err
	}
	if c.autoSync {
		_ = c.store.Sync()
	}
	return nil
}

// KeysWithPrefix lists the stored keys starting with prefix.
func (c *Client) KeysWithPrefix(prefix []byte) ([][]byte, error) {
	c.mu.RLock()
	keys, err := c.store.Keys()
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var matched [][]byte
	for _, k := range keys {
		if bytes.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	return matched, nil
}

// Reset drops every local key.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Reset()
}
