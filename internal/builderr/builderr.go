// Package builderr classifies the ways a generation run can fail.
//
// Every failure aborts the build. The kind only decides how the failure is
// reported; nothing in lorrigen retries or degrades on any of them.
package builderr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a build failure.
type Kind int

const (
	// Unknown is reported for errors that did not pass through this package.
	Unknown Kind = iota
	// MissingConfiguration: a required input is absent.
	MissingConfiguration
	// MalformedConfiguration: an input is present but does not parse.
	MalformedConfiguration
	// IOFailure: a file could not be read or written.
	IOFailure
	// GeneratorFailure: the binding generator rejected its input or failed.
	GeneratorFailure
)

func (k Kind) String() string {
	switch k {
	case MissingConfiguration:
		return "missing configuration"
	case MalformedConfiguration:
		return "malformed configuration"
	case IOFailure:
		return "i/o failure"
	case GeneratorFailure:
		return "generator failure"
	default:
		return "unknown"
	}
}

// Error is a classified build failure. Subject names the offending input:
// an environment variable, a file path or a generator.
type Error struct {
	Kind    Kind
	Subject string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Subject
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += ", " + e.Hint
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Missing reports an absent input together with the remediation step.
func Missing(subject, hint string) *Error {
	return &Error{
		Kind:    MissingConfiguration,
		Subject: subject,
		Hint:    hint,
		Err:     errors.New("not set"),
	}
}

// Malformed reports an input whose value failed to parse.
func Malformed(subject, value string, err error) *Error {
	return &Error{
		Kind:    MalformedConfiguration,
		Subject: subject,
		Err:     fmt.Errorf("cannot parse %q: %w", value, err),
	}
}

// IO wraps a filesystem error for path.
func IO(path string, err error) *Error {
	return &Error{Kind: IOFailure, Subject: path, Err: err}
}

// Generator wraps an error raised by the named binding generator.
func Generator(name string, err error) *Error {
	return &Error{Kind: GeneratorFailure, Subject: name, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries a failure of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
