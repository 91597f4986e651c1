package domain

import "errors"

// Error taxonomy shared by every layer. Storage adapters translate driver
// errors into one of these before returning.
var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access forbidden")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("storage unavailable")
	ErrInternal     = errors.New("internal error")
	ErrInvalidInput = errors.New("invalid input")
)

// ErrUsernameTaken is the Conflict raised by registration.
var ErrUsernameTaken = errorWithKind{msg: "username taken", kind: ErrConflict}

// ErrRequestInFlight is the Conflict raised when an idempotent score update
// is replayed before the original request finished.
var ErrRequestInFlight = errorWithKind{msg: "request with this idempotency key is still in progress", kind: ErrConflict}

// ErrScoreOutOfRange is the InvalidInput raised when a score update would
// leave the total outside the int64 range.
var ErrScoreOutOfRange = errorWithKind{msg: "score out of range", kind: ErrInvalidInput}

type errorWithKind struct {
	msg  string
	kind error
}

func (e errorWithKind) Error() string { return e.msg }

func (e errorWithKind) Unwrap() error { return e.kind }
