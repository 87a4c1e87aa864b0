// keystore.go - Password protected seed storage.
//
// The seed is encrypted with AES-256-GCM under a key derived by PBKDF2-SHA256
// (100 000 iterations, 16 byte salt, 12 byte nonce). Byte fields are written as
// JSON arrays of numbers so keystores exported by the browser wallet load as-is.

package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100_000
	SaltSize   = 16
	NonceSize  = 12
	KeySize    = 32
)

// ErrBadPassword is returned when decryption fails authentication.
var ErrBadPassword = errors.New("keystore: wrong password or corrupted keystore")

// Bytes marshals as a JSON array of numbers and accepts either that or base64.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err == nil {
		out := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("byte out of range: %d", v)
			}
			out[i] = byte(v)
		}
		*b = out
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected byte array or base64 string")
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*b = out
	return nil
}

// Keystore is an encrypted seed.
type Keystore struct {
	EncryptedSeed Bytes `json:"encryptedSeed"`
	Salt          Bytes `json:"salt"`
	IV            Bytes `json:"iv"`
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals seedHex under password with a fresh salt and nonce.
func Encrypt(seedHex, password string) (*Keystore, error) {
	seed, err := seedBytes(seedHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, SaltSize)
	iv := make([]byte, NonceSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	return &Keystore{
		EncryptedSeed: gcm.Seal(nil, iv, seed, nil),
		Salt:          salt,
		IV:            iv,
	}, nil
}

// Decrypt returns the seed as lowercase hex.
func (k *Keystore) Decrypt(password string) (string, error) {
	if len(k.IV) != NonceSize {
		return "", fmt.Errorf("keystore: iv must be %d bytes", NonceSize)
	}
	gcm, err := newGCM(deriveKey(password, k.Salt))
	if err != nil {
		return "", err
	}
	seed, err := gcm.Open(nil, k.IV, k.EncryptedSeed, nil)
	if err != nil {
		return "", ErrBadPassword
	}
	return hex.EncodeToString(seed), nil
}

// Save writes the keystore to path with owner-only permissions.
func (k *Keystore) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create keystore directory: %w", err)
	}
	raw, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

// Load reads a keystore written by Save or exported by the browser wallet.
func Load(path string) (*Keystore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var k Keystore
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("failed to decode keystore: %w", err)
	}
	return &k, nil
}

// seedBytes decodes a hex seed, padding an odd final nibble on the left.
func seedBytes(seedHex string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"), "0X")
	if s == "" {
		return nil, errors.New("keystore: empty seed")
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("keystore: seed is not hex: %w", err)
	}
	return b, nil
}
