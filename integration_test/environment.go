package integration

import (
	"context"
	"path/filepath"
	"testing"

	"groupjobs/internal/corruption"
	"groupjobs/internal/database"
	"groupjobs/internal/jobstore"
	"groupjobs/internal/metrics"
	"groupjobs/internal/models"
	"groupjobs/internal/retry"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// TestEnvironment is one on-disk queue with everything a producer or
// consumer process would hold.
type TestEnvironment struct {
	t        *testing.T
	Dir      string
	DBPath   string
	Config   *models.DatabaseConfig
	DB       *database.Database
	Store    *jobstore.Store
	Detector *corruption.Detector
	Metrics  *metrics.Registry
	Logger   *logrus.Logger
	LogHook  *test.Hook
}

// NewTestEnvironment opens a fresh queue in a temp directory
func NewTestEnvironment(t *testing.T, cfg *models.DatabaseConfig) *TestEnvironment {
	t.Helper()
	if cfg == nil {
		cfg = &models.DatabaseConfig{}
	}

	dir := t.TempDir()
	env := &TestEnvironment{
		t:      t,
		Dir:    dir,
		DBPath: filepath.Join(dir, "queue.db"),
		Config: cfg,
	}
	env.Logger, env.LogHook = test.NewNullLogger()
	env.open()

	t.Cleanup(env.Close)
	return env
}

func (e *TestEnvironment) open() {
	e.t.Helper()

	db, err := database.New(e.DBPath, e.Config)
	require.NoError(e.t, err)

	detector, err := corruption.NewDetector(corruption.StatePathFor(e.DBPath), e.Logger)
	require.NoError(e.t, err)

	e.DB = db
	e.Detector = detector
	e.Metrics = metrics.NewRegistry()
	e.Store = jobstore.New(e.Logger, detector,
		jobstore.WithMetrics(e.Metrics),
		jobstore.WithFatalHandler(func(_ *logrus.Logger, f *jobstore.ReadFailure) {
			e.t.Errorf("unexpected fatal read: %v", f)
		}),
	)
}

// Reopen simulates a process restart against the same files
func (e *TestEnvironment) Reopen() {
	e.t.Helper()
	require.NoError(e.t, e.DB.Close())
	e.open()
}

// Close releases the database handle
func (e *TestEnvironment) Close() {
	if e.DB != nil {
		e.DB.Close()
	}
}

// Enqueue inserts the fixtures in one write transaction
func (e *TestEnvironment) Enqueue(jobs ...*models.Job) {
	e.t.Helper()
	err := e.DB.Write(context.Background(), func(tx *database.WriteTx) error {
		for _, job := range jobs {
			if err := e.Store.Insert(context.Background(), tx, job); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(e.t, err)
}

// Dequeue reads up to batchSize jobs and removes them in the same write
// transaction, retrying on lock contention.
func (e *TestEnvironment) Dequeue(ctx context.Context, batchSize uint) ([]*models.Job, error) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: 0,
		MaxDelay:     0,
		Multiplier:   1,
		MaxAttempts:  20,
	})

	var batch []*models.Job
	err := backoff.RetryWithPredicate(ctx, func() error {
		return e.DB.Write(ctx, func(tx *database.WriteTx) error {
			jobs, err := e.Store.NextJobs(ctx, tx, batchSize)
			if err != nil {
				return err
			}
			ids := make([]string, len(jobs))
			for i, job := range jobs {
				ids[i] = job.UniqueID
			}
			if err := e.Store.RemoveJobs(ctx, tx, ids); err != nil {
				return err
			}
			batch = jobs
			return nil
		})
	}, database.IsRetryableDBError)
	return batch, err
}

// Count returns the total queue depth
func (e *TestEnvironment) Count() uint {
	e.t.Helper()
	var count uint
	err := e.DB.Read(context.Background(), func(tx *database.ReadTx) error {
		var err error
		count, err = e.Store.JobCount(context.Background(), tx)
		return err
	})
	require.NoError(e.t, err)
	return count
}
