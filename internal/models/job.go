package models

import (
	"bytes"

	"github.com/google/uuid"
)

// Job is one incoming group message waiting to be processed.
type Job struct {
	// ID is assigned by storage on insert and defines queue order. Zero until persisted.
	ID       int64  `json:"id"`
	UniqueID string `json:"unique_id"`
	GroupID  []byte `json:"group_id"`

	EnvelopeData []byte `json:"envelope_data"`
	// PlaintextData is nil when the producer had no decrypted payload.
	PlaintextData []byte `json:"plaintext_data,omitempty"`

	WasReceivedByUD         bool   `json:"was_received_by_ud"`
	ServerDeliveryTimestamp uint64 `json:"server_delivery_timestamp"`
}

// NewJob builds an unsaved job with a fresh unique ID. The byte slices are
// copied so later changes by the caller do not leak into the job.
func NewJob(envelopeData, plaintextData, groupID []byte, wasReceivedByUD bool, serverDeliveryTimestamp uint64) *Job {
	return &Job{
		UniqueID:                uuid.NewString(),
		GroupID:                 bytes.Clone(groupID),
		EnvelopeData:            bytes.Clone(envelopeData),
		PlaintextData:           bytes.Clone(plaintextData),
		WasReceivedByUD:         wasReceivedByUD,
		ServerDeliveryTimestamp: serverDeliveryTimestamp,
	}
}

// HasPlaintext reports whether the job carries a decrypted payload.
func (j *Job) HasPlaintext() bool {
	return j.PlaintextData != nil
}

// BelongsTo reports whether the job is queued for the given group.
func (j *Job) BelongsTo(groupID []byte) bool {
	return bytes.Equal(j.GroupID, groupID)
}
