package jobstore

import (
	"fmt"

	"groupjobs/internal/constants"

	"github.com/sirupsen/logrus"
)

// FailureMode separates reads the queue can shrug off from reads it cannot.
type FailureMode int

const (
	// FailureDegraded reads are logged and answered with an empty result.
	FailureDegraded FailureMode = iota + 1
	// FailureFatal reads stop the process after the corruption check.
	FailureFatal
)

func (m FailureMode) String() string {
	switch m {
	case FailureDegraded:
		return "degraded"
	case FailureFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ReadFailure is the tagged outcome of a read that could not be served.
type ReadFailure struct {
	Op                  string
	Mode                FailureMode
	CorruptionSuspected bool
	Err                 error
}

func (f *ReadFailure) Error() string {
	return fmt.Sprintf("%s read failure in %s: %v", f.Mode, f.Op, f.Err)
}

func (f *ReadFailure) Unwrap() error {
	return f.Err
}

// CorruptionFlagger inspects a failed read and records suspected storage
// corruption. It reports whether the error was flagged.
type CorruptionFlagger interface {
	FlagReadCorruptionIfNecessary(err error) bool
}

// FatalHandler is invoked for FailureFatal reads. It is expected not to
// return; if it does, the read answers with its zero value.
type FatalHandler func(logger *logrus.Logger, failure *ReadFailure)

// ExitOnFatal logs the failure at fatal level, which exits the process
// through logger.ExitFunc.
func ExitOnFatal(logger *logrus.Logger, failure *ReadFailure) {
	logger.WithError(failure.Err).WithFields(logrus.Fields{
		constants.LogFieldOperation: failure.Op,
		"corruption_suspected":      failure.CorruptionSuspected,
	}).Fatal("Unrecoverable job queue read failure")
}

type noCorruptionCheck struct{}

func (noCorruptionCheck) FlagReadCorruptionIfNecessary(error) bool { return false }
