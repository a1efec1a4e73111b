package database

import (
	"path/filepath"
	"testing"

	"groupjobs/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-pbkdf2"

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := NewEncryptor(false)
	require.NoError(t, err)
	assert.False(t, enc.Enabled())

	data := []byte("envelope")
	sealed, err := enc.Seal(data)
	require.NoError(t, err)
	assert.Equal(t, data, sealed)

	opened, err := enc.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, data, opened)
}

func TestEncryptor_RequiresSecret(t *testing.T) {
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", "")

	_, err := NewEncryptor(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GROUPJOBS_ENCRYPTION_SECRET")
}

func TestEncryptor_RejectsShortSecret(t *testing.T) {
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", "short")

	_, err := NewEncryptor(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestEncryptor_RoundTrip(t *testing.T) {
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", testSecret)

	enc, err := NewEncryptor(true)
	require.NoError(t, err)
	require.True(t, enc.Enabled())

	tests := []struct {
		name string
		data []byte
	}{
		{"binary payload", []byte{0x00, 0x01, 0xfe, 0xff}},
		{"text payload", []byte("hello group")},
		{"empty but present", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := enc.Seal(tt.data)
			require.NoError(t, err)
			assert.NotEqual(t, tt.data, sealed)

			opened, err := enc.Open(sealed)
			require.NoError(t, err)
			assert.NotNil(t, opened)
			assert.Equal(t, tt.data, opened)
		})
	}
}

func TestEncryptor_NilStaysNil(t *testing.T) {
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", testSecret)

	enc, err := NewEncryptor(true)
	require.NoError(t, err)

	sealed, err := enc.Seal(nil)
	require.NoError(t, err)
	assert.Nil(t, sealed)

	opened, err := enc.Open(nil)
	require.NoError(t, err)
	assert.Nil(t, opened)
}

func TestEncryptor_NonDeterministic(t *testing.T) {
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", testSecret)

	enc, err := NewEncryptor(true)
	require.NoError(t, err)

	a, err := enc.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := enc.Seal([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptor_OpenRejectsGarbage(t *testing.T) {
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", testSecret)

	enc, err := NewEncryptor(true)
	require.NoError(t, err)

	_, err = enc.Open([]byte{0x01, 0x02})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "too short")

	sealed, err := enc.Seal([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = enc.Open(sealed)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt")
}

func TestNew_EncryptionFromEnvironment(t *testing.T) {
	t.Setenv("GROUPJOBS_ENABLE_ENCRYPTION", "true")
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", testSecret)

	db, err := New(filepath.Join(t.TempDir(), "data.db"), &models.DatabaseConfig{})
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.Encryptor().Enabled())
}

func TestNew_EncryptionMissingSecretFails(t *testing.T) {
	t.Setenv("GROUPJOBS_ENCRYPTION_SECRET", "")

	db, err := New(filepath.Join(t.TempDir(), "data.db"), &models.DatabaseConfig{EncryptionEnabled: true})
	assert.Error(t, err)
	assert.Nil(t, db)
}
