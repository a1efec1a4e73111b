package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	envelope := []byte("envelope")
	plaintext := []byte("plaintext")
	groupID := []byte{0x01, 0x02, 0x03}

	job := NewJob(envelope, plaintext, groupID, true, 1700000000000)

	require.NotNil(t, job)
	assert.Zero(t, job.ID)
	assert.Equal(t, envelope, job.EnvelopeData)
	assert.Equal(t, plaintext, job.PlaintextData)
	assert.Equal(t, groupID, job.GroupID)
	assert.True(t, job.WasReceivedByUD)
	assert.Equal(t, uint64(1700000000000), job.ServerDeliveryTimestamp)

	_, err := uuid.Parse(job.UniqueID)
	assert.NoError(t, err)
}

func TestNewJob_CopiesInput(t *testing.T) {
	envelope := []byte("envelope")
	groupID := []byte{0x0a}

	job := NewJob(envelope, nil, groupID, false, 1)
	envelope[0] = 'X'
	groupID[0] = 0xff

	assert.Equal(t, []byte("envelope"), job.EnvelopeData)
	assert.Equal(t, []byte{0x0a}, job.GroupID)
}

func TestNewJob_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		job := NewJob(nil, nil, []byte("g"), false, 0)
		assert.False(t, seen[job.UniqueID], "unique ID reused: %s", job.UniqueID)
		seen[job.UniqueID] = true
	}
}

func TestJob_HasPlaintext(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		expected  bool
	}{
		{"absent", nil, false},
		{"empty but present", []byte{}, true},
		{"present", []byte("hi"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob([]byte("e"), tt.plaintext, []byte("g"), false, 0)
			assert.Equal(t, tt.expected, job.HasPlaintext())
		})
	}
}

func TestJob_BelongsTo(t *testing.T) {
	job := NewJob(nil, nil, []byte("group-a"), false, 0)

	assert.True(t, job.BelongsTo([]byte("group-a")))
	assert.False(t, job.BelongsTo([]byte("group-b")))
	assert.False(t, job.BelongsTo(nil))
}
