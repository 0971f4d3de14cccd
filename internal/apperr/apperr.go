package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error. Kinds are compared with errors.Is against the
// exported sentinels below.
type Kind string

const (
	KindInvalidInput              Kind = "InvalidInput"
	KindObjectNotFound            Kind = "ObjectNotFound"
	KindFieldIsNotUnique          Kind = "FieldIsNotUnique"
	KindUniqueConstraintViolation Kind = "UniqueConstraintViolation"
	KindForeignKeyViolation       Kind = "ForeignKeyViolation"
	KindUnknownDatabaseWriteError Kind = "UnknownDatabaseWriteError"
)

// Sentinels for errors.Is(err, apperr.ErrObjectNotFound) style checks.
var (
	ErrInvalidInput              = &Error{Kind: KindInvalidInput}
	ErrObjectNotFound            = &Error{Kind: KindObjectNotFound}
	ErrFieldIsNotUnique          = &Error{Kind: KindFieldIsNotUnique}
	ErrUniqueConstraintViolation = &Error{Kind: KindUniqueConstraintViolation}
	ErrForeignKeyViolation       = &Error{Kind: KindForeignKeyViolation}
	ErrUnknownDatabaseWriteError = &Error{Kind: KindUnknownDatabaseWriteError}
)

type Error struct {
	Kind    Kind     `json:"kind"`
	Code    string   `json:"code"`
	Status  int      `json:"-"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
	Details []Detail `json:"details,omitempty"`
	Err     error    `json:"-"`
}

type Detail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", strings.Join(e.Path, "."), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithPath returns a copy of e whose path is prefixed with segments. Nested
// resolution calls this on the way out so the final path reads
// model -> relation key -> index from the top.
func (e *Error) WithPath(segments ...string) *Error {
	c := *e
	c.Path = append(append([]string{}, segments...), e.Path...)
	return &c
}

func InvalidInput(msg string, path ...string) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Code:    "INVALID_INPUT",
		Status:  400,
		Message: msg,
		Path:    path,
	}
}

func InvalidInputf(path []string, format string, args ...any) *Error {
	return InvalidInput(fmt.Sprintf(format, args...), path...)
}

func ObjectNotFound(model string, selector any) *Error {
	return &Error{
		Kind:    KindObjectNotFound,
		Code:    "OBJECT_NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s matching %v not found", model, selector),
	}
}

func FieldIsNotUnique(model string, fields []string) *Error {
	return &Error{
		Kind:    KindFieldIsNotUnique,
		Code:    "FIELD_IS_NOT_UNIQUE",
		Status:  400,
		Message: fmt.Sprintf("%s selector on (%s) is not a unique key", model, strings.Join(fields, ", ")),
	}
}

func UniqueConstraintViolation(cause error) *Error {
	return &Error{
		Kind:    KindUniqueConstraintViolation,
		Code:    "UNIQUE_CONSTRAINT_VIOLATION",
		Status:  409,
		Message: "A record with this value already exists",
		Err:     cause,
	}
}

func ForeignKeyViolation(cause error) *Error {
	return &Error{
		Kind:    KindForeignKeyViolation,
		Code:    "FOREIGN_KEY_VIOLATION",
		Status:  409,
		Message: "Foreign key constraint failed",
		Err:     cause,
	}
}

func UnknownDatabaseWriteError(cause error) *Error {
	msg := "Unknown database write error"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{
		Kind:    KindUnknownDatabaseWriteError,
		Code:    "UNKNOWN_DATABASE_WRITE_ERROR",
		Status:  500,
		Message: msg,
		Err:     cause,
	}
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Prefix adds path segments to err when it is an *Error and returns it
// unchanged otherwise.
func Prefix(err error, segments ...string) error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e.WithPath(segments...)
	}
	return err
}
