package cmn

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrKind is the small closed taxonomy of error kinds the core distinguishes;
// the HTTP edge maps each to a status code per spec §7.
type ErrKind int

const (
	KindInternal ErrKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindNotAllowed
	KindConflict
	KindLimitReached
)

// Error is the typed wrapper error every layer boundary returns or wraps.
// NOTE: Conflict and LimitReached are not meant to propagate as HTTP errors;
// handlers check for them explicitly and answer 200 with an error_* field,
// per the observed wire shape (spec §7, §9 open question).
type Error struct {
	Kind ErrKind
	msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.Err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrKind, msg string) *Error { return &Error{Kind: kind, msg: msg} }

func ErrUnauthorized(msg string) *Error  { return newErr(KindUnauthorized, msg) }
func ErrForbidden(msg string) *Error     { return newErr(KindForbidden, msg) }
func ErrNotFound(msg string) *Error      { return newErr(KindNotFound, msg) }
func ErrNotAllowed(msg string) *Error    { return newErr(KindNotAllowed, msg) }
func ErrConflict(msg string) *Error      { return newErr(KindConflict, msg) }
func ErrLimitReached(msg string) *Error  { return newErr(KindLimitReached, msg) }

// ErrInternal wraps a lower-layer error (SQL/IO/serialization) with context,
// mirroring the teacher's convention of wrapping at each layer boundary.
func ErrInternal(context string, cause error) *Error {
	return &Error{Kind: KindInternal, msg: context, Err: errors.WithStack(cause)}
}

// HTTPStatus maps an Error's Kind to the status code prescribed by spec §7.
// Conflict and LimitReached map to 200 by convention; callers that want the
// typed wire shape must special-case those kinds before calling HTTPStatus.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAllowed:
		return http.StatusInternalServerError
	case KindConflict, KindLimitReached:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func IsKind(err error, kind ErrKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
