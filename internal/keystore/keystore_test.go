package keystore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	seed := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	ks, err := Encrypt(seed, "correct horse")
	require.NoError(t, err)
	assert.Len(t, ks.Salt, SaltSize)
	assert.Len(t, ks.IV, NonceSize)

	got, err := ks.Decrypt("correct horse")
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	_, err = ks.Decrypt("battery staple")
	assert.ErrorIs(t, err, ErrBadPassword)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "seed.json")
	ks, err := Encrypt("0x1", "pw")
	require.NoError(t, err)
	require.NoError(t, ks.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	got, err := loaded.Decrypt("pw")
	require.NoError(t, err)
	assert.Equal(t, "01", got)
}

func TestBytesJSON(t *testing.T) {
	raw, err := json.Marshal(Bytes{0, 7, 255})
	require.NoError(t, err)
	assert.Equal(t, "[0,7,255]", string(raw))

	var b Bytes
	require.NoError(t, json.Unmarshal([]byte(`"AAf/"`), &b))
	assert.Equal(t, Bytes{0, 7, 255}, b)

	assert.Error(t, json.Unmarshal([]byte(`[256]`), &b))
}
