package jobstore

import (
	"database/sql"
	"fmt"

	"groupjobs/internal/database"
	"groupjobs/internal/migrations"
	"groupjobs/internal/models"
)

const (
	colID                      = "id"
	colUniqueID                = "unique_id"
	colGroupID                 = "group_id"
	colEnvelopeData            = "envelope_data"
	colPlaintextData           = "plaintext_data"
	colWasReceivedByUD         = "was_received_by_ud"
	colServerDeliveryTimestamp = "server_delivery_timestamp"
)

const tableName = migrations.TableName

var jobColumns = []string{
	colID,
	colUniqueID,
	colGroupID,
	colEnvelopeData,
	colPlaintextData,
	colWasReceivedByUD,
	colServerDeliveryTimestamp,
}

// scanJobs reads every row, decrypting payload blobs. It always returns a
// non-nil slice on success.
func scanJobs(rows *sql.Rows, encryptor *database.Encryptor) ([]*models.Job, error) {
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		var (
			job       models.Job
			envelope  []byte
			plaintext []byte
			timestamp int64
		)
		if err := rows.Scan(
			&job.ID,
			&job.UniqueID,
			&job.GroupID,
			&envelope,
			&plaintext,
			&job.WasReceivedByUD,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		var err error
		if job.EnvelopeData, err = encryptor.Open(envelope); err != nil {
			return nil, fmt.Errorf("failed to decrypt envelope for job %d: %w", job.ID, err)
		}
		if job.PlaintextData, err = encryptor.Open(plaintext); err != nil {
			return nil, fmt.Errorf("failed to decrypt plaintext for job %d: %w", job.ID, err)
		}
		if job.EnvelopeData == nil {
			job.EnvelopeData = []byte{}
		}
		job.ServerDeliveryTimestamp = uint64(timestamp)

		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}
