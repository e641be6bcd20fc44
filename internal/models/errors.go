// Package models provides the data structures shared across the covered-call analysis.
package models

import (
	"errors"
	"fmt"
)

// ErrorKind identifies which validation rule rejected a request.
type ErrorKind string

const (
	KindUndefinedTicker       ErrorKind = "UNDEFINED_TICKER"
	KindInvalidTicker         ErrorKind = "INVALID_TICKER"
	KindMalformedDate         ErrorKind = "MALFORMED_DATE"
	KindDateAlreadyPassed     ErrorKind = "PASSED_DATE"
	KindInvalidExpirationDate ErrorKind = "INVALID_DATE"
)

// AnalysisError is a validation failure carrying its kind and the offending value
// (ticker or date string).
type AnalysisError struct {
	Kind  ErrorKind
	Value string
}

func (e *AnalysisError) Error() string {
	switch e.Kind {
	case KindUndefinedTicker:
		return "ticker is not defined"
	case KindInvalidTicker:
		return fmt.Sprintf("ticker %s is not valid", e.Value)
	case KindMalformedDate:
		return fmt.Sprintf("date %s is not parsable in ISO date format (ISO 8601)", e.Value)
	case KindDateAlreadyPassed:
		return fmt.Sprintf("date %s has already passed", e.Value)
	case KindInvalidExpirationDate:
		return fmt.Sprintf("date %s is not a valid expiration date", e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Value)
}

// Is matches any AnalysisError of the same kind, so the sentinels below work with errors.Is.
func (e *AnalysisError) Is(target error) bool {
	var t *AnalysisError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching by kind.
var (
	ErrUndefinedTicker       = &AnalysisError{Kind: KindUndefinedTicker}
	ErrInvalidTicker         = &AnalysisError{Kind: KindInvalidTicker}
	ErrMalformedDate         = &AnalysisError{Kind: KindMalformedDate}
	ErrDateAlreadyPassed     = &AnalysisError{Kind: KindDateAlreadyPassed}
	ErrInvalidExpirationDate = &AnalysisError{Kind: KindInvalidExpirationDate}
)

// NewError builds an AnalysisError for kind and value.
func NewError(kind ErrorKind, value string) *AnalysisError {
	return &AnalysisError{Kind: kind, Value: value}
}

// KindOf returns the kind of the first AnalysisError in err's chain.
// ok is false for gateway and other non-validation errors.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}
