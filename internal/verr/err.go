// Package verr defines the error taxonomy shared by every component of the
// transfer coordinator. It is adapted from thatique-awan/verr: the same
// xerrors-based wrapping and frame capture, generalized with the two
// error kinds the file-transfer domain needs beyond generic blob storage.
package verr

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"golang.org/x/xerrors"
)

// ErrorCode describes the error's category.
type ErrorCode int

const (
	// OK is returned by Code on a nil error. It's not a valid code for an
	// error.
	OK ErrorCode = iota

	// Unknown is returned when the error could not be categorized.
	Unknown

	// NotFound means the record or blob object was not found.
	NotFound

	// AlreadyExists means the resource already exists, but it should not.
	AlreadyExists

	// InvalidArgument means a value given to an API is incorrect, e.g. a
	// file size out of range or an inconsistent part list. Reported to
	// clients as BadRequest.
	InvalidArgument

	// Internal always indicates a bug in this service or the backend it
	// depends on.
	Internal

	// Unimplemented means the feature is not implemented by the backend.
	Unimplemented

	// FailedPrecondition means the system was in the wrong state for the
	// call, e.g. completing a multipart session that was never started.
	FailedPrecondition

	// PermissionDenied means the caller's owner token did not match.
	PermissionDenied

	// ResourceExhausted means some resource, such as a download quota,
	// has been exhausted.
	ResourceExhausted

	// Aborted means the operation was aborted, typically due to a
	// concurrency conflict.
	Aborted

	// Unavailable means the backend (blob store or metadata store) could
	// not be reached. Retryable.
	Unavailable

	// Unauthenticated means the HMAC challenge-response in the
	// Authorization header was missing or did not verify.
	Unauthenticated

	// Gone means the download limit on a file has already been reached.
	Gone

	// FileTooLarge means the part-size algorithm could not fit the
	// declared file size within MAX_PARTS at MAX_PART_SIZE.
	FileTooLarge
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case Unknown:
		return "Unknown"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case InvalidArgument:
		return "InvalidArgument"
	case Internal:
		return "Internal"
	case Unimplemented:
		return "Unimplemented"
	case FailedPrecondition:
		return "FailedPrecondition"
	case PermissionDenied:
		return "PermissionDenied"
	case ResourceExhausted:
		return "ResourceExhausted"
	case Aborted:
		return "Aborted"
	case Unavailable:
		return "Unavailable"
	case Unauthenticated:
		return "Unauthenticated"
	case Gone:
		return "Gone"
	case FileTooLarge:
		return "FileTooLarge"
	}
	return "ErrorCode(?)"
}

// Error is the concrete error type produced by this package.
type Error struct {
	Code  ErrorCode
	msg   string
	frame xerrors.Frame
	err   error
}

func (e *Error) Error() string {
	return fmt.Sprint(e)
}

func (e *Error) Format(s fmt.State, c rune) {
	xerrors.FormatError(e, s, c)
}

func (e *Error) FormatError(p xerrors.Printer) (next error) {
	if e.msg == "" {
		p.Printf("code=%v", e.Code)
	} else {
		p.Printf("%s (code=%v)", e.msg, e.Code)
	}
	e.frame.Format(p)
	return e.err
}

// Unwrap returns the error underlying the receiver, which may be nil.
func (e *Error) Unwrap() error {
	return e.err
}

// New returns a new error with the given code, underlying error and
// message. Pass 1 for callDepth if New is called from the function
// raising the error; pass 2 if it is called from a helper invoked by the
// original function; and so on.
func New(c ErrorCode, err error, callDepth int, msg string) *Error {
	return &Error{
		Code:  c,
		msg:   msg,
		frame: xerrors.Caller(callDepth),
		err:   err,
	}
}

// Newf uses format and args to format a message, then calls New.
func Newf(c ErrorCode, err error, format string, args ...interface{}) *Error {
	return New(c, err, 2, fmt.Sprintf(format, args...))
}

// Code returns the ErrorCode of err if it, or some error it wraps, is an
// *Error. If err is a context error, it maps to Aborted. If err is nil,
// it returns OK. Otherwise, Unknown.
func Code(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var e *Error
	if xerrors.As(err, &e) {
		return e.Code
	}
	if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
		return Aborted
	}
	return Unknown
}

// DoNotWrap reports whether an error should not be wrapped in the Error
// type from this package: context errors or io.EOF.
func DoNotWrap(err error) bool {
	if xerrors.Is(err, io.EOF) {
		return true
	}
	if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// ErrorAs is a helper for the ErrorAs method of a component's portable
// type. It performs initial nil checks and a single level of unwrapping
// when err is a *Error, then calls errorAs, which should be a driver
// implementation of ErrorAs.
func ErrorAs(err error, target interface{}, errorAs func(error, interface{}) bool) bool {
	if err == nil {
		return false
	}
	if target == nil {
		panic("ErrorAs target cannot be nil")
	}
	val := reflect.ValueOf(target)
	if val.Type().Kind() != reflect.Ptr || val.IsNil() {
		panic("ErrorAs target must be a non-nil pointer")
	}
	if e, ok := err.(*Error); ok {
		err = e.Unwrap()
	}
	return errorAs(err, target)
}
