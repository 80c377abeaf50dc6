package storage

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nijenhuis/api-guard/internal/models"
	"go.uber.org/zap"
)

// KeyStore handles API key persistence. The in-memory map is authoritative
// for the running process; files under keysDir are the durable mirror.
// A write failure is reported to the caller but never invalidates the
// in-memory state.
type KeyStore struct {
	mu      sync.RWMutex
	keys    map[string]*models.APIKey
	keysDir string
	logger  *zap.Logger
}

// NewKeyStore creates a key store and loads any persisted keys
func NewKeyStore(keysDir string, logger *zap.Logger) *KeyStore {
	s := &KeyStore{
		keys:    make(map[string]*models.APIKey),
		keysDir: keysDir,
		logger:  logger,
	}
	s.loadAll()
	return s
}

func (s *KeyStore) loadAll() {
	entries, err := os.ReadDir(s.keysDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read keys directory, starting empty",
				zap.String("dir", s.keysDir), zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.keysDir, entry.Name()))
		if err != nil {
			s.logger.Warn("Failed to read key file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		var key models.APIKey
		if err := json.Unmarshal(data, &key); err != nil {
			s.logger.Warn("Failed to parse key file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		s.keys[key.Key] = &key
	}

	s.logger.Info("Loaded API keys", zap.Int("count", len(s.keys)))
}

// GenerateKey returns a new unguessable API key string
func GenerateKey() string {
	b := make([]byte, 32)
	rand.Read(b)
	return "sk-" + base64.RawURLEncoding.EncodeToString(b)
}

// Create generates and stores a new API key. The plaintext key is only
// returned here; callers must store it.
func (s *KeyStore) Create(name string, permissions []models.Permission, rateLimitOverride *int) (*models.APIKey, error) {
	for _, p := range permissions {
		if !models.ValidPermissions[p] {
			return nil, fmt.Errorf("unknown permission: %s", p)
		}
	}

	key := &models.APIKey{
		Key:               GenerateKey(),
		Name:              name,
		Permissions:       permissions,
		RateLimitOverride: rateLimitOverride,
		CreatedAt:         time.Now().Unix(),
		UsageCount:        0,
	}

	s.mu.Lock()
	s.keys[key.Key] = key
	s.mu.Unlock()

	if err := s.persist(key); err != nil {
		// In-memory state stays authoritative
		s.logger.Warn("Failed to persist new API key", zap.Error(err))
	}

	cp := *key
	return &cp, nil
}

// Lookup returns a copy of the key record, or false if not found
func (s *KeyStore) Lookup(key string) (*models.APIKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[key]
	if !ok {
		return nil, false
	}
	cp := *k
	return &cp, true
}

// RecordUsage updates lastUsed and usageCount for a key. The write is
// flushed before returning; a persistence failure is returned so the
// caller can surface it, but the in-memory update always sticks.
func (s *KeyStore) RecordUsage(key string) error {
	s.mu.Lock()
	k, ok := s.keys[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("key not found")
	}
	k.UpdateUsage()
	cp := *k
	s.mu.Unlock()

	return s.persist(&cp)
}

// Revoke removes a key; returns false if the key did not exist
func (s *KeyStore) Revoke(key string) bool {
	s.mu.Lock()
	_, ok := s.keys[key]
	if ok {
		delete(s.keys, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	filePath := filepath.Join(s.keysDir, keyFilename(key))
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove key file", zap.Error(err))
	}
	return true
}

// List returns copies of all keys
func (s *KeyStore) List() []*models.APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*models.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		cp := *k
		keys = append(keys, &cp)
	}
	return keys
}

// Count returns the number of stored keys
func (s *KeyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *KeyStore) persist(key *models.APIKey) error {
	if err := os.MkdirAll(s.keysDir, 0755); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}

	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	filePath := filepath.Join(s.keysDir, keyFilename(key.Key))
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	return nil
}

// keyFilename converts a key to a safe filename
func keyFilename(key string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_").Replace(key)
	return safe + ".json"
}
