// SPDX-License-Identifier: MIT
//
// Package errs defines the engine's error taxonomy. Every failure that can
// cross the API boundary carries a stable numeric code so external consumers
// can switch on codes instead of parsing messages. Codes are append-only:
// existing values never change meaning across releases.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code identifies a failure class. Audio codes occupy 1001-1011,
// calibration codes 2001-2006.
type Code int

const (
	// Audio engine failures.
	CodeBpmInvalid     Code = 1001
	CodeAlreadyRunning Code = 1002
	CodeNotRunning     Code = 1003
	CodeHardware       Code = 1004
	CodePermission     Code = 1005
	CodeStreamOpen     Code = 1006
	CodeStatePoisoned  Code = 1007
	CodeInitFailed     Code = 1008
	CodeNoContext      Code = 1009
	CodeStreamFailure  Code = 1010
	CodePatchEmpty     Code = 1011

	// Calibration failures.
	CodeInsufficientSamples Code = 2001
	CodeInvalidFeatures     Code = 2002
	CodeNotComplete         Code = 2003
	CodeAlreadyInProgress   Code = 2004
	CodeCalibrationPoisoned Code = 2005
	CodeCalibrationTimeout  Code = 2006
)

// Error is a coded engine error. The zero value is not meaningful; construct
// via New or Wrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New returns a coded error with a formatted message.
func New(code Code, format string, v ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...)}
}

// Wrap returns a coded error whose cause is preserved for errors.Is/As chains.
func Wrap(code Code, cause error, format string, v ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, v...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by code, so sentinel comparisons like
// errors.Is(err, errs.New(errs.CodeNotRunning, "")) work regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// MarshalJSON emits the wire form consumed by the telemetry error stream.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{int(e.Code), e.Message})
}

// CodeOf extracts the numeric code from an error chain. Returns 0 when the
// chain contains no coded error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
