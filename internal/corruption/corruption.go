// Package corruption decides whether a failed read points at on-disk
// database corruption and remembers that verdict across restarts so a
// recovery flow can act on it.
package corruption

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"groupjobs/internal/constants"
	"groupjobs/internal/security"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// State is the persisted corruption flag
type State struct {
	Flagged   bool      `json:"flagged"`
	FlaggedAt time.Time `json:"flagged_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Count     int       `json:"count"`
}

// Detector inspects read errors and flags suspected corruption
type Detector struct {
	path   string
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
}

// StatePathFor returns the default flag file location for a database
func StatePathFor(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), constants.DefaultCorruptionStateFile)
}

// NewDetector loads any previously persisted state from statePath.
func NewDetector(statePath string, logger *logrus.Logger) (*Detector, error) {
	if err := security.ValidateFilePath(statePath); err != nil {
		return nil, fmt.Errorf("invalid corruption state path: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	d := &Detector{
		path:   statePath,
		logger: logger,
		now:    time.Now,
	}

	data, err := os.ReadFile(statePath) // #nosec G304 - Path validated above
	switch {
	case errors.Is(err, os.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read corruption state: %w", err)
	}

	if err := json.Unmarshal(data, &d.state); err != nil {
		// An unreadable flag file is itself suspicious; keep it flagged.
		logger.WithError(err).WithField("path", statePath).Warn("Corruption state file is unreadable, treating database as flagged")
		d.state = State{Flagged: true, FlaggedAt: d.now().UTC(), Reason: "unreadable corruption state file"}
	}
	return d, nil
}

// IsCorruptionError reports whether err looks like sqlite storage corruption
func IsCorruptionError(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		// The low byte is the primary code when an extended one is reported.
		code := sqliteErr.Code & 0xff
		if code == sqlite3.ErrCorrupt || code == sqlite3.ErrNotADB {
			return true
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "database disk image is malformed") ||
		strings.Contains(errStr, "file is not a database") ||
		strings.Contains(errStr, "file is encrypted or is not a database")
}

// FlagReadCorruptionIfNecessary persists the corruption flag when err looks
// like corruption and reports whether it did.
func (d *Detector) FlagReadCorruptionIfNecessary(err error) bool {
	if !IsCorruptionError(err) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.Flagged {
		d.state.FlaggedAt = d.now().UTC()
	}
	d.state.Flagged = true
	d.state.Reason = err.Error()
	d.state.Count++

	if saveErr := d.save(); saveErr != nil {
		d.logger.WithError(saveErr).WithField("path", d.path).Error("Failed to persist corruption state")
	}

	d.logger.WithError(err).WithFields(logrus.Fields{
		"path":  d.path,
		"count": d.state.Count,
	}).Error("Flagged database read corruption")
	return true
}

// State returns a copy of the current state
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsFlagged reports whether corruption has been flagged
func (d *Detector) IsFlagged() bool {
	return d.State().Flagged
}

// Clear resets the flag after recovery and removes the state file
func (d *Detector) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = State{}
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove corruption state: %w", err)
	}
	return nil
}

// save writes the state atomically. Caller holds d.mu.
func (d *Detector) save() error {
	data, err := json.MarshalIndent(d.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, d.path)
}
