package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeyStore_CreateAndLookup(t *testing.T) {
	s := NewKeyStore(t.TempDir(), zap.NewNop())

	created, err := s.Create("test_key", []models.Permission{models.PermissionChat, models.PermissionHealth}, nil)
	require.NoError(t, err)
	assert.True(t, len(created.Key) > 20)
	assert.Contains(t, created.Key, "sk-")

	found, ok := s.Lookup(created.Key)
	require.True(t, ok)
	assert.Equal(t, "test_key", found.Name)
	assert.True(t, found.HasPermission(models.PermissionChat))
	assert.False(t, found.HasPermission(models.PermissionAdmin))

	_, ok = s.Lookup("sk-nope")
	assert.False(t, ok)
}

func TestKeyStore_InvalidPermission(t *testing.T) {
	s := NewKeyStore(t.TempDir(), zap.NewNop())

	_, err := s.Create("bad", []models.Permission{"root"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown permission")
	assert.Equal(t, 0, s.Count())
}

func TestKeyStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	s := NewKeyStore(dir, zap.NewNop())
	limit := 10
	created, err := s.Create("persisted", []models.Permission{models.PermissionChat}, &limit)
	require.NoError(t, err)
	require.NoError(t, s.RecordUsage(created.Key))

	// A fresh store over the same directory sees the key and its usage
	reloaded := NewKeyStore(dir, zap.NewNop())
	found, ok := reloaded.Lookup(created.Key)
	require.True(t, ok)
	assert.Equal(t, "persisted", found.Name)
	assert.Equal(t, int64(1), found.UsageCount)
	require.NotNil(t, found.RateLimitOverride)
	assert.Equal(t, 10, *found.RateLimitOverride)
	assert.NotNil(t, found.LastUsed)
}

func TestKeyStore_KeyFilePermissions(t *testing.T) {
	dir := t.TempDir()
	s := NewKeyStore(dir, zap.NewNop())

	created, err := s.Create("test_key", []models.Permission{models.PermissionChat}, nil)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, keyFilename(created.Key)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestKeyStore_Revoke(t *testing.T) {
	dir := t.TempDir()
	s := NewKeyStore(dir, zap.NewNop())

	created, err := s.Create("test_key", []models.Permission{models.PermissionChat}, nil)
	require.NoError(t, err)

	assert.True(t, s.Revoke(created.Key))
	_, ok := s.Lookup(created.Key)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Count())

	// The key file is gone too
	_, err = os.Stat(filepath.Join(dir, keyFilename(created.Key)))
	assert.True(t, os.IsNotExist(err))

	assert.False(t, s.Revoke(created.Key), "second revoke should report missing")
}

func TestKeyStore_RecordUsage_UnknownKey(t *testing.T) {
	s := NewKeyStore(t.TempDir(), zap.NewNop())
	assert.Error(t, s.RecordUsage("sk-missing"))
}

func TestKeyStore_List(t *testing.T) {
	s := NewKeyStore(t.TempDir(), zap.NewNop())

	_, err := s.Create("a", []models.Permission{models.PermissionChat}, nil)
	require.NoError(t, err)
	_, err = s.Create("b", []models.Permission{models.PermissionHealth}, nil)
	require.NoError(t, err)

	keys := s.List()
	assert.Len(t, keys, 2)

	// Mutating a returned record must not touch the store
	keys[0].Name = "mutated"
	for _, k := range s.List() {
		assert.NotEqual(t, "mutated", k.Name)
	}
}

func TestKeyStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0600))

	s := NewKeyStore(dir, zap.NewNop())
	assert.Equal(t, 0, s.Count())
}

func TestGenerateKey_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k := GenerateKey()
		assert.False(t, seen[k])
		seen[k] = true
	}
}

func TestLoadOrCreateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "jwt_secret")

	first, err := LoadOrCreateSecret(path)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Second load returns the same secret, never a new one
	second, err := LoadOrCreateSecret(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadOrCreateSecret_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt_secret")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0600))

	_, err := LoadOrCreateSecret(path)
	assert.Error(t, err)
}
