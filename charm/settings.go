// ABOUTME: Per-agent store for the last-used autopilot run settings
// ABOUTME: Values are JSON under settings:<userID> so they sync across an agent's devices
package charm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/harperreed/leadpilot/models"
)

const settingsPrefix = "settings:"

// SettingsStore remembers the RunSettings each agent last started a session with.
type SettingsStore struct {
	client *Client
}

func NewSettingsStore(c *Client) *SettingsStore {
	return &SettingsStore{client: c}
}

func settingsKey(userID string) []byte {
	return []byte(settingsPrefix + userID)
}

// Load returns the saved settings for userID. ok is false when nothing is saved.
func (s *SettingsStore) Load(userID string) (settings models.RunSettings, ok bool, err error) {
	data, err := s.client.Get(settingsKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.RunSettings{}, false, nil
	}
	if err != nil {
		return models.RunSettings{}, false, fmt.Errorf("failed to read settings for %s: %w", userID, err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.RunSettings{}, false, fmt.Errorf("failed to decode settings for %s: %w", userID, err)
	}
	return settings, true, nil
}

// LoadOrDefault returns the saved settings, or fallback when none are saved or
// the saved value no longer validates.
func (s *SettingsStore) LoadOrDefault(userID string, fallback models.RunSettings) models.RunSettings {
	settings, ok, err := s.Load(userID)
	if err != nil || !ok || settings.Validate() != nil {
		return fallback
	}
	return settings
}

func (s *SettingsStore) Save(userID string, settings models.RunSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.client.Set(settingsKey(userID), data)
}

func (s *SettingsStore) Delete(userID string) error {
	return s.client.Delete(settingsKey(userID))
}

// Users lists every agent with saved settings.
func (s *SettingsStore) Users() ([]string, error) {
	keys, err := s.client.KeysWithPrefix([]byte(settingsPrefix))
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(string(k), settingsPrefix))
	}
	return users, nil
}
