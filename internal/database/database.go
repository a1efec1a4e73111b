package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"groupjobs/internal/constants"
	apperrors "groupjobs/internal/errors"
	"groupjobs/internal/migrations"
	"groupjobs/internal/models"
	"groupjobs/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database owns the sqlite handles the job queue lives in. Writes go through
// db, whose transactions begin IMMEDIATE; reads go through reader, whose
// transactions are deferred and query-only so they never hold the write lock.
// It hands out transactions; it never runs queue queries itself.
type Database struct {
	db        *sql.DB
	reader    *sql.DB
	encryptor *Encryptor
	path      string
}

// New opens (creating if needed) the database at dbPath and applies pending migrations.
func New(dbPath string, cfg *models.DatabaseConfig) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if cfg == nil {
		cfg = &models.DatabaseConfig{}
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", writerDataSourceName(dbPath, cfg))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to ping database")
	}

	if _, err := migrations.Up(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseMigration, "failed to initialize schema")
	}

	encryptor, err := NewEncryptor(cfg.EncryptionEnabled || isEncryptionEnabled())
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	reader, err := sql.Open("sqlite3", readerDataSourceName(dbPath, cfg))
	if err == nil {
		err = reader.Ping()
	}
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to open read connection: %w (close error: %v)", err, closeErr)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to open read connection")
	}

	return &Database{db: db, reader: reader, encryptor: encryptor, path: dbPath}, nil
}

func busyTimeoutMs(cfg *models.DatabaseConfig) int {
	if cfg.BusyTimeoutMs <= 0 {
		return constants.DefaultBusyTimeoutMs
	}
	return cfg.BusyTimeoutMs
}

// writerDataSourceName builds the mattn/go-sqlite3 DSN for writes.
// Transactions start with BEGIN IMMEDIATE so a write never fails on lock
// upgrade mid-transaction.
func writerDataSourceName(dbPath string, cfg *models.DatabaseConfig) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(busyTimeoutMs(cfg)))
	params.Set("_journal_mode", "WAL")
	params.Set("_txlock", "immediate")
	params.Set("_foreign_keys", "on")
	return dbPath + "?" + params.Encode()
}

// readerDataSourceName builds the DSN for read transactions. mattn/go-sqlite3
// ignores sql.TxOptions.ReadOnly, so the lock mode and query-only pragma are
// set on the connection instead. WAL mode is a property of the file and is
// already set by the writer.
func readerDataSourceName(dbPath string, cfg *models.DatabaseConfig) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(busyTimeoutMs(cfg)))
	params.Set("_txlock", "deferred")
	params.Set("_query_only", "true")
	return dbPath + "?" + params.Encode()
}

func (d *Database) Close() error {
	readErr := d.reader.Close()
	if err := d.db.Close(); err != nil {
		return err
	}
	return readErr
}

// Path returns the file the database was opened from
func (d *Database) Path() string {
	return d.path
}

// Encryptor returns the blob encryptor shared by all transactions
func (d *Database) Encryptor() *Encryptor {
	return d.encryptor
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Read runs fn inside a read-only transaction that is always rolled back.
// Reads see a consistent snapshot and run alongside each other and alongside
// one writer.
func (d *Database) Read(ctx context.Context, fn func(tx *ReadTx) error) error {
	sqlTx, err := d.reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return classifyError("begin read transaction", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	return fn(&ReadTx{tx: sqlTx, encryptor: d.encryptor})
}

// Write runs fn inside a write transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
func (d *Database) Write(ctx context.Context, fn func(tx *WriteTx) error) (err error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyError("begin write transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
	}()

	if err := fn(&WriteTx{ReadTx{tx: sqlTx, encryptor: d.encryptor}}); err != nil {
		return classifyError("write transaction", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classifyError("commit write transaction", err)
	}
	committed = true
	return nil
}
