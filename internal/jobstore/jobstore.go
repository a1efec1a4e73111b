// Package jobstore is the durable FIFO queue of incoming group message jobs.
// It never opens, commits or rolls back transactions: every operation runs
// inside the transaction handed to it, so a caller can read a batch and
// remove it atomically.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"groupjobs/internal/constants"
	"groupjobs/internal/database"
	apperrors "groupjobs/internal/errors"
	"groupjobs/internal/metrics"
	"groupjobs/internal/models"
	"groupjobs/internal/privacy"
	"groupjobs/internal/tracing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	opInsert              = "insert"
	opAllEnqueuedGroupIDs = "all_enqueued_group_ids"
	opNextJobs            = "next_jobs"
	opNextJobsForGroup    = "next_jobs_for_group"
	opExistsJob           = "exists_job"
	opJobCountForGroup    = "job_count_for_group"
	opRemoveJobs          = "remove_jobs"
	opJobCount            = "job_count"
)

const (
	MetricJobsInserted      = "jobstore_jobs_inserted_total"
	MetricJobsRemoved       = "jobstore_jobs_removed_total"
	MetricDegradedReads     = "jobstore_degraded_reads_total"
	MetricFatalReads        = "jobstore_fatal_reads_total"
	MetricOperationDuration = "jobstore_operation_duration"
	MetricQueueDepth        = "jobstore_queue_depth"
)

// Store implements the job queue operations.
type Store struct {
	logger     *logrus.Logger
	corruption CorruptionFlagger
	onFatal    FatalHandler
	metrics    *metrics.Registry
}

// Option customises a Store
type Option func(*Store)

// WithFatalHandler replaces ExitOnFatal
func WithFatalHandler(h FatalHandler) Option {
	return func(s *Store) {
		if h != nil {
			s.onFatal = h
		}
	}
}

// WithMetrics records into r instead of the global registry
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Store) {
		if r != nil {
			s.metrics = r
		}
	}
}

// New creates a Store. corruption may be nil, in which case fatal reads are
// never flagged as corruption.
func New(logger *logrus.Logger, corruption CorruptionFlagger, opts ...Option) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	if corruption == nil {
		corruption = noCorruptionCheck{}
	}

	s := &Store{
		logger:     logger,
		corruption: corruption,
		onFatal:    ExitOnFatal,
		metrics:    metrics.GetRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert persists job and sets job.ID to the assigned sequence number. A job
// without a UniqueID gets a fresh one and a nil envelope is stored as an empty
// one. A job without a group id is rejected because it could never be
// dequeued by group. Errors are fatal for the transaction.
func (s *Store) Insert(ctx context.Context, tx *database.WriteTx, job *models.Job) error {
	ctx, done := s.observe(ctx, opInsert)
	defer done()

	if job == nil {
		return apperrors.NewInvalidInputError("job", "job is required")
	}
	if len(job.GroupID) == 0 {
		return apperrors.NewInvalidInputError("group_id", "group id is required")
	}
	if job.EnvelopeData == nil {
		job.EnvelopeData = []byte{}
	}
	if job.UniqueID == "" {
		job.UniqueID = uuid.NewString()
	}

	encryptor := tx.Encryptor()
	envelope, err := encryptor.Seal(job.EnvelopeData)
	if err != nil {
		return s.writeFailure(ctx, opInsert, err)
	}

	// Absent plaintext stays NULL; an empty one is stored as an empty blob.
	var plaintext any
	if job.PlaintextData != nil {
		sealed, err := encryptor.Seal(job.PlaintextData)
		if err != nil {
			return s.writeFailure(ctx, opInsert, err)
		}
		plaintext = sealed
	}

	query, args, err := sq.Insert(tableName).
		Columns(colUniqueID, colGroupID, colEnvelopeData, colPlaintextData, colWasReceivedByUD, colServerDeliveryTimestamp).
		Values(job.UniqueID, job.GroupID, envelope, plaintext, job.WasReceivedByUD, int64(job.ServerDeliveryTimestamp)).
		ToSql()
	if err != nil {
		return s.writeFailure(ctx, opInsert, err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return s.writeFailure(ctx, opInsert, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return s.writeFailure(ctx, opInsert, err)
	}
	job.ID = id

	s.metrics.IncrementCounter(MetricJobsInserted, nil, "Jobs added to the queue")
	s.logger.WithFields(logrus.Fields{
		constants.LogFieldJobID:    id,
		constants.LogFieldUniqueID: privacy.MaskUniqueID(job.UniqueID),
		constants.LogFieldGroupID:  privacy.MaskGroupID(job.GroupID),
	}).Debug("Enqueued group job")
	return nil
}

// AddJob builds a job from its fields and inserts it. groupID must be
// non-empty; nil and empty envelopes are equivalent.
func (s *Store) AddJob(
	ctx context.Context,
	tx *database.WriteTx,
	envelopeData, plaintextData, groupID []byte,
	wasReceivedByUD bool,
	serverDeliveryTimestamp uint64,
) error {
	job := models.NewJob(envelopeData, plaintextData, groupID, wasReceivedByUD, serverDeliveryTimestamp)
	return s.Insert(ctx, tx, job)
}

// AllEnqueuedGroupIDs returns each group id with at least one job, sorted
// bytewise. A failed query degrades to an empty result; callers must not
// treat an empty answer as proof that the queue is empty.
func (s *Store) AllEnqueuedGroupIDs(ctx context.Context, tx database.ReadTransaction) [][]byte {
	ctx, done := s.observe(ctx, opAllEnqueuedGroupIDs)
	defer done()

	groupIDs, err := s.queryGroupIDs(ctx, tx)
	if err != nil {
		s.degrade(ctx, &ReadFailure{Op: opAllEnqueuedGroupIDs, Mode: FailureDegraded, Err: err})
		return [][]byte{}
	}

	tracing.AddSpanAttributes(ctx, attribute.Int("jobstore.result_count", len(groupIDs)))
	return groupIDs
}

func (s *Store) queryGroupIDs(ctx context.Context, tx database.ReadTransaction) ([][]byte, error) {
	query, args, err := sq.Select(colGroupID).
		Distinct().
		From(tableName).
		OrderBy(colGroupID).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groupIDs := make([][]byte, 0)
	for rows.Next() {
		var groupID []byte
		if err := rows.Scan(&groupID); err != nil {
			return nil, err
		}
		groupIDs = append(groupIDs, groupID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupIDs, nil
}

// NextJobs returns up to batchSize jobs in insertion order without removing
// them.
func (s *Store) NextJobs(ctx context.Context, tx database.ReadTransaction, batchSize uint) ([]*models.Job, error) {
	return s.nextJobs(ctx, tx, opNextJobs, nil, batchSize)
}

// NextJobsForGroup is NextJobs restricted to one group.
func (s *Store) NextJobsForGroup(ctx context.Context, tx database.ReadTransaction, groupID []byte, batchSize uint) ([]*models.Job, error) {
	return s.nextJobs(ctx, tx, opNextJobsForGroup, groupFilter(groupID), batchSize)
}

func (s *Store) nextJobs(ctx context.Context, tx database.ReadTransaction, op string, filter sq.Sqlizer, batchSize uint) ([]*models.Job, error) {
	ctx, done := s.observe(ctx, op, attribute.Int64("jobstore.batch_size", int64(batchSize)))
	defer done()

	if batchSize == 0 {
		return []*models.Job{}, nil
	}

	builder := sq.Select(jobColumns...).
		From(tableName).
		OrderBy(colID + " ASC").
		Limit(uint64(batchSize))
	if filter != nil {
		builder = builder.Where(filter)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, s.readError(ctx, op, err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.readError(ctx, op, err)
	}

	jobs, err := scanJobs(rows, tx.Encryptor())
	if err != nil {
		return nil, s.readError(ctx, op, err)
	}

	tracing.AddSpanAttributes(ctx, attribute.Int("jobstore.result_count", len(jobs)))
	s.logger.WithFields(logrus.Fields{
		constants.LogFieldOperation: op,
		constants.LogFieldBatchSize: batchSize,
		constants.LogFieldCount:     len(jobs),
	}).Debug("Fetched queued jobs")
	return jobs, nil
}

// ExistsJob reports whether groupID has at least one queued job. A failed
// read is unrecoverable: it is checked for corruption and then handed to the
// fatal handler.
func (s *Store) ExistsJob(ctx context.Context, tx database.ReadTransaction, groupID []byte) bool {
	ctx, done := s.observe(ctx, opExistsJob)
	defer done()

	query, args, err := sq.Select("1").
		From(tableName).
		Where(groupFilter(groupID)).
		Limit(1).
		ToSql()
	if err != nil {
		s.fatal(ctx, opExistsJob, err)
		return false
	}

	var one int
	err = tx.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false
	case err != nil:
		s.fatal(ctx, opExistsJob, err)
		return false
	}
	return true
}

// JobCountForGroup returns the number of queued jobs for groupID. Failures
// are handled like ExistsJob.
func (s *Store) JobCountForGroup(ctx context.Context, tx database.ReadTransaction, groupID []byte) uint {
	ctx, done := s.observe(ctx, opJobCountForGroup)
	defer done()

	count, err := s.count(ctx, tx, groupFilter(groupID))
	if err != nil {
		s.fatal(ctx, opJobCountForGroup, err)
		return 0
	}
	return count
}

// JobCount returns the total number of queued jobs.
func (s *Store) JobCount(ctx context.Context, tx database.ReadTransaction) (uint, error) {
	ctx, done := s.observe(ctx, opJobCount)
	defer done()

	count, err := s.count(ctx, tx, nil)
	if err != nil {
		return 0, s.readError(ctx, opJobCount, err)
	}

	s.metrics.SetGauge(MetricQueueDepth, float64(count), nil, "Jobs currently queued")
	return count, nil
}

func (s *Store) count(ctx context.Context, tx database.ReadTransaction, filter sq.Sqlizer) (uint, error) {
	builder := sq.Select("COUNT(*)").From(tableName)
	if filter != nil {
		builder = builder.Where(filter)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return uint(count), nil
}

// RemoveJobs deletes the jobs with the given unique ids. Unknown ids are
// ignored and an empty list never reaches the database.
func (s *Store) RemoveJobs(ctx context.Context, tx *database.WriteTx, uniqueIDs []string) error {
	if len(uniqueIDs) == 0 {
		return nil
	}

	ctx, done := s.observe(ctx, opRemoveJobs, attribute.Int("jobstore.batch_size", len(uniqueIDs)))
	defer done()

	var removed int64
	for start := 0; start < len(uniqueIDs); start += constants.MaxBoundParameters {
		end := min(start+constants.MaxBoundParameters, len(uniqueIDs))

		query, args, err := sq.Delete(tableName).
			Where(sq.Eq{colUniqueID: uniqueIDs[start:end]}).
			ToSql()
		if err != nil {
			return s.writeFailure(ctx, opRemoveJobs, err)
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return s.writeFailure(ctx, opRemoveJobs, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return s.writeFailure(ctx, opRemoveJobs, err)
		}
		removed += affected
	}

	tracing.AddSpanAttributes(ctx, attribute.Int64("jobstore.result_count", removed))
	s.metrics.AddToCounter(MetricJobsRemoved, float64(removed), nil, "Jobs removed from the queue")
	s.logger.WithFields(logrus.Fields{
		constants.LogFieldCount: removed,
		"requested":             len(uniqueIDs),
		"unique_ids":            privacy.MaskUniqueIDs(uniqueIDs),
	}).Debug("Removed group jobs")
	return nil
}

// groupFilter matches one group. sq.Eq would expand a []byte into an IN list.
func groupFilter(groupID []byte) sq.Sqlizer {
	return sq.Expr(colGroupID+" = ?", groupID)
}

// observe opens a span for op and returns the function that closes it and
// records the operation duration.
func (s *Store) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func()) {
	start := time.Now()
	attrs = append([]attribute.KeyValue{attribute.String("jobstore.operation", op)}, attrs...)
	ctx, span := tracing.StartSpan(ctx, "jobstore."+op, attrs...)

	return ctx, func() {
		s.metrics.RecordTimer(MetricOperationDuration, time.Since(start), map[string]string{"operation": op}, "Job queue operation duration")
		span.End()
	}
}

func (s *Store) writeFailure(ctx context.Context, op string, err error) error {
	appErr := apperrors.NewDatabaseError(op, err)
	tracing.RecordError(ctx, appErr)
	apperrors.WrapLogger(s.logger).LogError(appErr, "Failed to write job queue", logrus.Fields{
		constants.LogFieldOperation: op,
	})
	return appErr
}

func (s *Store) readError(ctx context.Context, op string, err error) error {
	appErr := apperrors.NewDatabaseError(op, err)
	tracing.RecordError(ctx, appErr)
	return appErr
}

func (s *Store) degrade(ctx context.Context, failure *ReadFailure) {
	tracing.RecordError(ctx, failure)
	s.metrics.IncrementCounter(MetricDegradedReads, map[string]string{"operation": failure.Op}, "Job queue reads answered with an empty result")
	s.logger.WithError(failure.Err).WithFields(logrus.Fields{
		constants.LogFieldOperation: failure.Op,
	}).Warn("Job queue read failed, returning empty result")
}

func (s *Store) fatal(ctx context.Context, op string, err error) {
	failure := &ReadFailure{
		Op:                  op,
		Mode:                FailureFatal,
		CorruptionSuspected: s.corruption.FlagReadCorruptionIfNecessary(err),
		Err:                 err,
	}
	if failure.CorruptionSuspected {
		failure.Err = apperrors.NewCorruptionError(op, err)
	}
	tracing.RecordError(ctx, failure)
	s.metrics.IncrementCounter(MetricFatalReads, map[string]string{"operation": op}, "Unrecoverable job queue reads")
	s.onFatal(s.logger, failure)
}
