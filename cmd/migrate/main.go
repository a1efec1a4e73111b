package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"groupjobs/internal/migrations"
	"groupjobs/internal/security"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

func main() {
	dbPath := flag.String("db", "./groupjobs.db", "Path to the database file")
	down := flag.Bool("down", false, "Roll back all migrations instead of applying them")
	showVersion := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := run(*dbPath, *down, *showVersion, logger); err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
}

func run(dbPath string, down, showVersion bool, logger *logrus.Logger) error {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) && (down || showVersion) {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Closing the migrator closes db as well.
	m, err := migrations.New(db)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	switch {
	case showVersion:
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("No migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("Current schema version")
		return nil

	case down:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.WithField("path", dbPath).Info("Rolled back all migrations")
		return nil

	default:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		version, _, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		logger.WithFields(logrus.Fields{"path": dbPath, "version": version}).Info("Schema is up to date")
		return nil
	}
}
