// README: Error taxonomy shared by all modules; every error carries a stable code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindPolicy     Kind = "policy_violation"
	KindNotFound   Kind = "not_found"
	KindExternal   Kind = "external_dependency"
	KindInternal   Kind = "internal"
)

// Error is matched by code: errors.Is(err, ErrX) holds for any *Error that
// carries the same code, whatever its message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e that wraps cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }
func Conflict(code, msg string) *Error   { return New(KindConflict, code, msg) }
func Policy(code, msg string) *Error     { return New(KindPolicy, code, msg) }
func NotFound(code, msg string) *Error   { return New(KindNotFound, code, msg) }

// External wraps a failure of a collaborator (database, cache, maps, push).
func External(code string, err error) *Error {
	return &Error{Kind: KindExternal, Code: code, Message: "external dependency failed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or "INTERNAL".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// Shared errors used by more than one module.
var (
	ErrVersionConflict  = Conflict("VERSION_CONFLICT", "record was modified concurrently")
	ErrInvalidTimeRange = Validation("INVALID_TIME_RANGE", "end must be after start")
	ErrForbidden        = Policy("FORBIDDEN", "actor is not allowed to perform this action")
)
