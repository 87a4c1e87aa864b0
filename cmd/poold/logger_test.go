package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerAudit(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l, err := newLogger(&console, "warn", filepath.Join(dir, "poold.log"), filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	l.Audit("seed_unlocked", map[string]interface{}{"source": "keystore"})
	require.NoError(t, l.Close())

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")

	raw, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &entry))
	assert.Equal(t, "seed_unlocked", entry["event"])
	assert.Equal(t, "keystore", entry["source"])
	assert.Equal(t, "audit", entry["type"])

	logged, err := os.ReadFile(filepath.Join(dir, "poold.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logged), "shown")
}

func TestLoggerWithoutFiles(t *testing.T) {
	var console bytes.Buffer
	l, err := newLogger(&console, "debug", "", "")
	require.NoError(t, err)

	l.Audit("seed_locked", nil)
	assert.Contains(t, console.String(), "seed_locked")
	assert.NoError(t, l.Close())
}
