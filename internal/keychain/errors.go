package keychain

import (
	"errors"
	"fmt"
)

// Status codes shared with Keychain Services. Other facilities reuse them so
// callers see the same numbers everywhere.
const (
	CodeParam        int32 = -50
	CodeAuthFailed   int32 = -25293
	CodeDuplicate    int32 = -25299
	CodeItemNotFound int32 = -25300
	CodeInternal     int32 = -2070
)

// StatusError is a non-success status reported by a Facility.
type StatusError struct {
	Code int32
	Msg  string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s (%d)", e.Msg, e.Code)
	}
	return fmt.Sprintf("keychain status %d", e.Code)
}

// Is matches any StatusError with the same code.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Code == e.Code
}

var (
	// ErrItemNotFound is the status a Facility reports when nothing matched.
	ErrItemNotFound = &StatusError{Code: CodeItemNotFound, Msg: "item not found"}

	// ErrDuplicateItem is the status a Facility reports when Add collides
	// with an existing record.
	ErrDuplicateItem = &StatusError{Code: CodeDuplicate, Msg: "duplicate item"}

	// ErrMalformedRecord is returned when a record's payload is not a UTF-8
	// secret.
	ErrMalformedRecord = errors.New("malformed credential record")

	// ErrStoreUnavailable matches every *UnavailableError.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// UnavailableError reports a facility failure other than "not found".
type UnavailableError struct {
	Op   string
	Code int32
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v (status %d)", e.Op, e.Err, e.Code)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func unavailable(op string, err error) error {
	code := CodeInternal
	var se *StatusError
	if errors.As(err, &se) {
		code = se.Code
	}
	return &UnavailableError{Op: op, Code: code, Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
