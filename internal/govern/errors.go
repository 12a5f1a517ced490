package govern

import (
	"errors"
	"fmt"
)

// RunError is a fatal, run-aborting failure. Everything below the
// dataset boundary is recorded on the ledger instead of propagating.
type RunError struct {
	Code    RunErrorCode
	Message string
	Err     error
}

// RunErrorCode categorizes fatal failures.
type RunErrorCode string

const (
	// ErrCodeWorkspaceUnavailable means the workspace or active map
	// could not be reached at all.
	ErrCodeWorkspaceUnavailable RunErrorCode = "WORKSPACE_UNAVAILABLE"

	// ErrCodeRootTraversalFailure means the layer tree could not be
	// resolved to any dataset.
	ErrCodeRootTraversalFailure RunErrorCode = "ROOT_TRAVERSAL_FAILURE"

	// ErrCodePolicyInvalid means the governance policy could not be
	// loaded or fails validation for the requested mode.
	ErrCodePolicyInvalid RunErrorCode = "POLICY_INVALID"

	// ErrCodeReportFailure means flushing the audit reports failed.
	ErrCodeReportFailure RunErrorCode = "REPORT_FAILURE"
)

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error { return e.Err }

// NewRunError creates a fatal run error.
func NewRunError(code RunErrorCode, message string, err error) *RunError {
	return &RunError{Code: code, Message: message, Err: err}
}

// IsFatal reports whether err is a run-aborting failure.
func IsFatal(err error) bool {
	var re *RunError
	return errors.As(err, &re)
}
