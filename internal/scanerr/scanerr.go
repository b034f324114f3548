// Package scanerr defines the error taxonomy reported to subscribers.
// Every recoverable failure carries a stable code the dashboards key on,
// plus a human-readable message.
package scanerr

import (
	"errors"
	"fmt"
)

// Code identifies one failure class.
type Code string

const (
	CodeInvalidBarcode        Code = "invalid_barcode"
	CodeUnknownState          Code = "unknown_state"
	CodeOldWorkOrder          Code = "old_work_order"
	CodeNoPermissibleStates   Code = "no_permissible_states"
	CodeStateResolutionFailed Code = "state_resolution_failed"
	CodeNoStorageLocations    Code = "no_storage_locations"
	CodeLocationChangeFailed  Code = "location_change_failed"
	CodeCommitFailed          Code = "commit_failed"
	CodeOverallocatedBay      Code = "overallocated_bay"
	CodeLockoutCreateFailed   Code = "lockout_create_failed"
	CodeDailyReportDisabled   Code = "daily_report_disabled"
)

// Error is a failure with a stable code. It is what gets serialized into
// the server_error broadcast payload.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is allows errors.Is comparisons against a bare-code sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// CodeOf extracts the code from err, walking wrapped errors. It returns
// an empty code when err carries no *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
