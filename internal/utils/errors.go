package utils

import (
	"errors"
	"fmt"
)

// ErrNoData signals that a detector or aligner received an empty series.
// It is a hard error, never silently replaced by a numeric fallback.
var ErrNoData = errors.New("no data in series")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// MissingDataError identifies exactly which analysis unit lacks its input:
// a required file or column for a (scenario, layer). The unit aborts; a
// zero series is never substituted.
type MissingDataError struct {
	Scenario string
	Layer    string
	Path     string
	Column   string
	Err      error
}

func (e *MissingDataError) Error() string {
	msg := fmt.Sprintf("missing data for scenario %q layer %q", e.Scenario, e.Layer)
	if e.Path != "" {
		msg += fmt.Sprintf(" (file %s)", e.Path)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" (column %s)", e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingDataError) Unwrap() error {
	return e.Err
}

// IsMissingData reports whether err is (or wraps) a MissingDataError.
func IsMissingData(err error) bool {
	var target *MissingDataError
	return errors.As(err, &target)
}
