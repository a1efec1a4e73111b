package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"

	"groupjobs/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// Encryptor seals job payload blobs at rest. A disabled Encryptor passes
// data through unchanged. Lookup columns (group_id, unique_id) are never
// encrypted.
type Encryptor struct {
	gcm cipher.AEAD
}

func NewEncryptor(enabled bool) (*Encryptor, error) {
	if !enabled {
		return &Encryptor{gcm: nil}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Enabled reports whether payloads are encrypted
func (e *Encryptor) Enabled() bool {
	return e != nil && e.gcm != nil
}

// Seal encrypts plaintext as nonce||ciphertext. nil stays nil so absent
// payloads remain NULL in storage.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	if plaintext == nil || !e.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, constants.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func (e *Encryptor) Open(sealed []byte) ([]byte, error) {
	if sealed == nil || !e.Enabled() {
		return sealed, nil
	}

	if len(sealed) < constants.NonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:constants.NonceSize], sealed[constants.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv("GROUPJOBS_ENCRYPTION_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("GROUPJOBS_ENCRYPTION_SECRET environment variable is required when encryption is enabled")
	}

	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	salt := []byte(constants.EncryptionSalt)

	return pbkdf2.Key([]byte(secret), salt, constants.Iterations, constants.KeySize, sha256.New), nil
}

func isEncryptionEnabled() bool {
	return os.Getenv("GROUPJOBS_ENABLE_ENCRYPTION") == "true"
}
