package logger

import (
	"path/filepath"
	"testing"

	"github.com/nijenhuis/api-guard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MirrorsIntoBuffer(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Output: filepath.Join(t.TempDir(), "app.log"),
	}

	log, buf, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, buf)

	log.Info("first message")
	log.Warn("second message")

	entries := buf.Recent(10)
	require.Len(t, entries, 2)
	assert.Equal(t, "second message", entries[0].Message, "newest first")
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "first message", entries[1].Message)

	buf.Clear()
	assert.Empty(t, buf.Recent(10))
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := NewBuffer(2)
	b.Add("info", "one")
	b.Add("info", "two")
	b.Add("info", "three")

	entries := b.Recent(10)
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[0].Message)
	assert.Equal(t, "two", entries[1].Message)
}

func TestNewDevelopment(t *testing.T) {
	log, err := NewDevelopment()
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Info("development logger ready")
}
