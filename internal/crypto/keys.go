// Package crypto resolves the private key that signs close transactions.
// Operators either put the key straight into config or point at a
// password-encrypted key file created with Seal.
package crypto

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
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations follows the OWASP minimum for PBKDF2-SHA256.
	kdfIterations = 480_000
	saltLen       = 16
	privKeyLen    = 32

	keyFileVersion = 1
)

// Source names where the signing key comes from. Raw wins over File.
type Source struct {
	// Raw is a hex private key, 0x prefix optional.
	Raw string

	// File points at a JSON blob written by Seal; Password opens it.
	File     string
	Password string
}

// Resolve returns the normalized hex private key for src.
func Resolve(src Source) (string, error) {
	if src.Raw != "" {
		raw, err := decodeKeyHex(src.Raw)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	}

	if src.File != "" {
		blob, err := os.ReadFile(src.File)
		if err != nil {
			return "", fmt.Errorf("crypto: reading key file: %w", err)
		}
		return Open(blob, src.Password)
	}

	return "", errors.New("crypto: no key source configured")
}

// Seal encrypts a hex private key under password and returns the JSON key
// file contents. Encryption is AES-256-GCM with a PBKDF2-derived key.
func Seal(privateKeyHex, password string) ([]byte, error) {
	raw, err := decodeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt, err := randBytes(saltLen)
	if err != nil {
		return nil, err
	}
	g, err := aead(password, salt)
	if err != nil {
		return nil, err
	}
	nonce, err := randBytes(g.NonceSize())
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(g.Seal(nil, nonce, raw, nil)),
	}, "", "  ")
}

// Open decrypts a key file blob produced by Seal and returns the hex
// private key without 0x prefix.
func Open(blob []byte, password string) (string, error) {
	var kf keyFile
	if err := json.Unmarshal(blob, &kf); err != nil {
		return "", fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}

	salt, err := unb64(kf.Salt, "salt")
	if err != nil {
		return "", err
	}
	nonce, err := unb64(kf.Nonce, "nonce")
	if err != nil {
		return "", err
	}
	ciphertext, err := unb64(kf.Ciphertext, "ciphertext")
	if err != nil {
		return "", err
	}

	g, err := aead(password, salt)
	if err != nil {
		return "", err
	}
	raw, err := g.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: opening key file (wrong password?): %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// keyFile is the on-disk layout, all binary fields base64.
type keyFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// aead derives an AES-256 key from password and salt and wraps it in GCM.
func aead(password string, salt []byte) (cipher.AEAD, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, privKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func decodeKeyHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}
	if len(raw) != privKeyLen {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", privKeyLen, len(raw))
	}
	return raw, nil
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: reading randomness: %w", err)
	}
	return b, nil
}

func unb64(s, field string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding %s: %w", field, err)
	}
	return out, nil
}
