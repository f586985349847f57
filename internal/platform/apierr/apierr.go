package apierr

import (
	"errors"
	"fmt"
)

// Error tags a failure with an HTTP-style status and a stable code so callers
// outside the service layer can report it uniformly.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Code != "" {
			return fmt.Sprintf("%s: %v", e.Code, e.Err)
		}
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("error (%d)", e.Status)
	}
	return "error"
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode is 2 for caller mistakes (4xx) and 1 for everything else.
func (e *Error) ExitCode() int {
	switch {
	case e == nil:
		return 0
	case e.Status >= 400 && e.Status < 500:
		return 2
	default:
		return 1
	}
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Rule maps errors matching Target to a status and code.
type Rule struct {
	Target error
	Status int
	Code   string
}

// Classify returns err as an *Error. An existing *Error in the chain wins,
// then the first matching rule, then 500/internal.
func Classify(err error, rules ...Rule) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	for _, r := range rules {
		if r.Target != nil && errors.Is(err, r.Target) {
			return New(r.Status, r.Code, err)
		}
	}
	return New(500, "internal", err)
}
