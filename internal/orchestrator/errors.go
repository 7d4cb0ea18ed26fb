package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/trend-radar/internal/types"
)

// ErrRunNotFound is returned by Resume when no checkpoint exists for the run
var ErrRunNotFound = errors.New("run not found")

// ErrRunExists is returned by Start when a checkpoint already exists for the run id
var ErrRunExists = errors.New("run already exists")

// Fatality says whether a stage failure aborts the run or is only logged
type Fatality int

const (
	// NonFatal failures are appended to the error log and the run continues
	NonFatal Fatality = iota
	// Fatal failures abort the run
	Fatal
)

func (f Fatality) String() string {
	if f == Fatal {
		return "fatal"
	}
	return "non-fatal"
}

// ConfigError reports an invalid graph definition. It is only produced by Build.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid pipeline graph: " + strings.Join(e.Problems, "; ")
}

// StageError lets a stage classify its own failure. Fatal escalates a stage declared
// non-fatal; it never downgrades a fatal stage.
type StageError struct {
	Kind  types.ErrorKind
	Fatal bool
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Validation returns a fatal validation error.
func Validation(format string, args ...any) error {
	return &StageError{Kind: types.ErrorKindValidation, Fatal: true, Err: fmt.Errorf(format, args...)}
}

// Transient wraps a recoverable I/O failure.
func Transient(err error) error {
	return &StageError{Kind: types.ErrorKindTransient, Err: err}
}

// classify resolves the error kind and effective fatality of a stage failure.
func classify(err error, declared Fatality) (types.ErrorKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, se.Fatal || declared == Fatal
	}
	return types.ErrorKindStage, declared == Fatal
}
