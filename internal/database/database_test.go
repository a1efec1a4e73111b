package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "groupjobs/internal/errors"
	"groupjobs/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insertRowQuery = `INSERT INTO incoming_group_jobs (unique_id, group_id, envelope_data, server_delivery_timestamp) VALUES (?, ?, ?, ?)`

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"), &models.DatabaseConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *Database) int {
	t.Helper()
	var n int
	err := db.Read(context.Background(), func(tx *ReadTx) error {
		return tx.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM incoming_group_jobs").Scan(&n)
	})
	require.NoError(t, err)
	return n
}

func TestNew_InvalidPath(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"nul byte", "\x00db"},
		{"traversal", "../outside.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.path, nil)
			assert.Error(t, err)
			assert.Nil(t, db)
		})
	}
}

func TestNew_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	assert.Equal(t, "test.db", filepath.Base(db.Path()))
	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, 0, countRows(t, db))
	assert.False(t, db.Encryptor().Enabled())

	_, err := os.Stat(db.Path())
	assert.NoError(t, err)
}

func TestNew_ReopenKeepsData(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Write(ctx, func(tx *WriteTx) error {
		_, err := tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := New(db.Path(), &models.DatabaseConfig{BusyTimeoutMs: 100})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, countRows(t, reopened))
}

func TestWrite_CommitsOnSuccess(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Write(ctx, func(tx *WriteTx) error {
		_, err := tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, db))
}

func TestWrite_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("abort")

	err := db.Write(ctx, func(tx *WriteTx) error {
		if _, err := tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	assert.Equal(t, 0, countRows(t, db))
}

func TestWrite_RollsBackOnPanic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = db.Write(ctx, func(tx *WriteTx) error {
			_, _ = tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1)
			panic("consumer crashed")
		})
	})

	assert.Equal(t, 0, countRows(t, db))
}

func TestWrite_WriteTxIsReadable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Write(ctx, func(tx *WriteTx) error {
		if _, err := tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1); err != nil {
			return err
		}

		var reader ReadTransaction = tx
		var n int
		if err := reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM incoming_group_jobs").Scan(&n); err != nil {
			return err
		}
		assert.Equal(t, 1, n)
		assert.Same(t, db.Encryptor(), reader.Encryptor())
		return nil
	})
	require.NoError(t, err)
}

func TestRead_SeesCommittedWrites(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Write(ctx, func(tx *WriteTx) error {
		_, err := tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1)
		return err
	})
	require.NoError(t, err)

	var rows int
	err = db.Read(ctx, func(tx *ReadTx) error {
		r, err := tx.QueryContext(ctx, "SELECT unique_id FROM incoming_group_jobs")
		if err != nil {
			return err
		}
		defer r.Close()
		for r.Next() {
			rows++
		}
		return r.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestRead_PropagatesCallbackError(t *testing.T) {
	db := setupTestDB(t)
	sentinel := errors.New("read failed")

	err := db.Read(context.Background(), func(tx *ReadTx) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestRead_CanceledContext(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.Read(ctx, func(tx *ReadTx) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestRead_OverlapsWithReadsAndWrite(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "overlap.db"), &models.DatabaseConfig{BusyTimeoutMs: 100})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, func(tx *WriteTx) error {
		_, err := tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1)
		return err
	}))

	count := func(tx ReadTransaction) int {
		var n int
		require.NoError(t, tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM incoming_group_jobs").Scan(&n))
		return n
	}

	err = db.Read(ctx, func(outer *ReadTx) error {
		assert.Equal(t, 1, count(outer))

		return db.Read(ctx, func(inner *ReadTx) error {
			assert.Equal(t, 1, count(inner))

			writeErr := db.Write(ctx, func(tx *WriteTx) error {
				_, err := tx.ExecContext(ctx, insertRowQuery, "u2", []byte("g"), []byte("e"), 2)
				return err
			})
			require.NoError(t, writeErr, "an open read must not block a writer")

			// Both readers keep their snapshot.
			assert.Equal(t, 1, count(inner))
			assert.Equal(t, 1, count(outer))
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 2, countRows(t, db))
}

func TestRead_CannotWrite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Read(ctx, func(tx *ReadTx) error {
		_, err := tx.tx.ExecContext(ctx, insertRowQuery, "u1", []byte("g"), []byte("e"), 1)
		return err
	})
	assert.Error(t, err)
	assert.Equal(t, 0, countRows(t, db))
}

func TestDataSourceNames(t *testing.T) {
	dsn := writerDataSourceName("queue.db", &models.DatabaseConfig{})
	assert.Contains(t, dsn, "queue.db?")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_txlock=immediate")

	dsn = writerDataSourceName("queue.db", &models.DatabaseConfig{BusyTimeoutMs: 250})
	assert.Contains(t, dsn, "_busy_timeout=250")

	dsn = readerDataSourceName("queue.db", &models.DatabaseConfig{BusyTimeoutMs: 250})
	assert.Contains(t, dsn, "_busy_timeout=250")
	assert.Contains(t, dsn, "_txlock=deferred")
	assert.Contains(t, dsn, "_query_only=true")
	assert.NotContains(t, dsn, "_txlock=immediate")
}
