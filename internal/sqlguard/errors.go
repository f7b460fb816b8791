package sqlguard

import (
	"errors"
	"fmt"
)

// Reason classifies why generated output was rejected.
type Reason string

const (
	ReasonUnparseable    Reason = "unparseable"
	ReasonMultiStatement Reason = "multi_statement"
	ReasonDisallowed     Reason = "disallowed_statement"
)

var (
	ErrUnparseable    = errors.New("sql is unparseable")
	ErrMultiStatement = errors.New("multiple sql statements")
	ErrDisallowed     = errors.New("sql statement kind is not allowed")
)

// Error is returned by Sanitize for every rejection.
type Error struct {
	Reason  Reason
	Message string
	Pos     Position
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches the sentinel error for the rejection reason.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnparseable:
		return e.Reason == ReasonUnparseable
	case ErrMultiStatement:
		return e.Reason == ReasonMultiStatement
	case ErrDisallowed:
		return e.Reason == ReasonDisallowed
	}
	return false
}

// SyntaxError reports a lexing or parsing failure.
type SyntaxError struct {
	Pos     Position
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

func unparseable(err error) *Error {
	out := &Error{Reason: ReasonUnparseable, Message: "generated SQL does not parse: " + err.Error()}
	var syntaxErr *SyntaxError
	if errors.As(err, &syntaxErr) {
		out.Pos = syntaxErr.Pos
	}
	return out
}
