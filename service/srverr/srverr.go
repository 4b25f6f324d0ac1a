// Package srverr classifies errors into kinds that the service layer
// maps onto HTTP statuses.
package srverr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindOther Kind = iota
	KindConflict
	KindExists
	KindInvalid
	KindNotFound
	KindNoCredentials
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindExists:
		return "exists"
	case KindInvalid:
		return "invalid operation"
	case KindNotFound:
		return "item does not exist"
	case KindNoCredentials:
		return "no credentials"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an Error from any mix of a Kind, an error to wrap, and/or a
// format string with arguments.
func E(args ...interface{}) error {
	e := &Error{}
	if len(args) == 0 {
		return e
	}
	if kind, ok := args[0].(Kind); ok {
		e.Kind = kind
		args = args[1:]
	}
	if len(args) == 0 {
		return e
	}
	if err, ok := args[0].(error); ok && len(args) == 1 {
		e.Err = err
		return e
	}
	if format, ok := args[0].(string); ok {
		e.Err = fmt.Errorf(format, args[1:]...)
		return e
	}
	e.Err = fmt.Errorf("%v", args)
	return e
}

func ErrInvalid(args ...interface{}) error {
	return E(append([]interface{}{KindInvalid}, args...)...)
}

func ErrNotFound(args ...interface{}) error {
	return E(append([]interface{}{KindNotFound}, args...)...)
}

func ErrConflict(args ...interface{}) error {
	return E(append([]interface{}{KindConflict}, args...)...)
}

func ErrUnavailable(args ...interface{}) error {
	return E(append([]interface{}{KindUnavailable}, args...)...)
}

func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// RecoverError converts a recovered panic value into an error.
func RecoverError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %+v", r)
}
