// Package verrors defines VelesDB's error taxonomy.
//
// Every fallible core operation returns one of the sentinel kinds below,
// wrapped with operation context via Wrap. Callers use errors.Is to check
// kind and errors.As to recover the *Error for its Op/Kind fields.
package verrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the taxonomy from the specification's
// error handling design.
type Kind int

const (
	// KindUnknown is the zero value; never returned by VelesDB itself.
	KindUnknown Kind = iota
	// KindValidation marks caller-side invalid input.
	KindValidation
	// KindNotFound marks a missing id or collection.
	KindNotFound
	// KindDimensionMismatch marks a vector length != collection dimension.
	KindDimensionMismatch
	// KindCorruptSnapshot marks a checksum or version mismatch on a snapshot load.
	KindCorruptSnapshot
	// KindCorruptIndex marks an internal index invariant violation.
	KindCorruptIndex
	// KindCorruptWAL marks a checksum or framing error in a WAL segment.
	KindCorruptWAL
	// KindIO marks an underlying file/os failure.
	KindIO
	// KindCapacityExceeded marks file extension refusal or id-space overflow.
	KindCapacityExceeded
	// KindTimeout marks a query that exceeded its timeout budget.
	KindTimeout
	// KindMmapRemapped marks a read guard invalidated by a concurrent remap.
	KindMmapRemapped
	// KindParameterMissing marks an unbound VelesQL parameter.
	KindParameterMissing
	// KindConcurrencyConflict marks a lock that could not be acquired within a deadline.
	KindConcurrencyConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindDimensionMismatch:
		return "DimensionMismatch"
	case KindCorruptSnapshot:
		return "CorruptSnapshot"
	case KindCorruptIndex:
		return "CorruptIndex"
	case KindCorruptWAL:
		return "CorruptWAL"
	case KindIO:
		return "IoError"
	case KindCapacityExceeded:
		return "CapacityExceeded"
	case KindTimeout:
		return "Timeout"
	case KindMmapRemapped:
		return "MmapRemapped"
	case KindParameterMissing:
		return "ParameterMissing"
	case KindConcurrencyConflict:
		return "ConcurrencyConflict"
	default:
		return "Unknown"
	}
}

// Sentinel kind values usable with errors.Is against the Kind of a wrapped Error.
var (
	ErrValidation          = &Error{Kind: KindValidation, msg: "validation error"}
	ErrNotFound            = &Error{Kind: KindNotFound, msg: "not found"}
	ErrDimensionMismatch   = &Error{Kind: KindDimensionMismatch, msg: "dimension mismatch"}
	ErrCorruptSnapshot     = &Error{Kind: KindCorruptSnapshot, msg: "corrupt snapshot"}
	ErrCorruptIndex        = &Error{Kind: KindCorruptIndex, msg: "corrupt index"}
	ErrCorruptWAL          = &Error{Kind: KindCorruptWAL, msg: "corrupt WAL"}
	ErrIO                  = &Error{Kind: KindIO, msg: "io error"}
	ErrCapacityExceeded    = &Error{Kind: KindCapacityExceeded, msg: "capacity exceeded"}
	ErrTimeout             = &Error{Kind: KindTimeout, msg: "timeout"}
	ErrMmapRemapped        = &Error{Kind: KindMmapRemapped, msg: "mmap remapped"}
	ErrParameterMissing    = &Error{Kind: KindParameterMissing, msg: "parameter missing"}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict, msg: "concurrency conflict"}
)

// Error is VelesDB's wrapped error type: an operation name, a taxonomy kind,
// and an optional underlying cause.
type Error struct {
	Op   string
	Kind Kind
	msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("velesdb: %s: %s", e.Kind, e.detail())
	}
	return fmt.Sprintf("velesdb: %s: %s: %s", e.Op, e.Kind, e.detail())
}

func (e *Error) detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target shares this error's Kind, so sentinel values
// above work with errors.Is(err, verrors.ErrNotFound).
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// Wrap annotates err with an operation name and taxonomy kind.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// New creates a new taxonomy error with a formatted message and no cause.
func New(op string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Of reports the Kind of err, or KindUnknown if err is not a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
