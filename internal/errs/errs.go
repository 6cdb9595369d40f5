// Package errs provides the typed error wrapping used across PartitionCache.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way §7 of the design classifies failures,
// so the CLI can map them onto exit codes 0/1/2.
type Kind int

const (
	KindInternal Kind = iota
	KindConfiguration
	KindParse
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindParse:
		return "parse"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is the error type produced by Wrap/New. It carries the operation
// that failed and, optionally, a Kind used for exit-code mapping.
type Error struct {
	Op    string
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap annotates err with op, preserving an existing Kind if err already
// carries one.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Op: op, Kind: existing.Kind, Cause: err}
	}

	return &Error{Op: op, Kind: KindInternal, Cause: err}
}

// WrapKind annotates err with op and a specific Kind, overriding any Kind
// the error already carried.
func WrapKind(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Op: op, Kind: kind, Cause: err}
}

// New creates a Kind-tagged error from a message, with no wrapped cause.
func New(op string, kind Kind, msg string) error {
	return &Error{Op: op, Kind: kind, Cause: errors.New(msg)}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// ExitCode maps a Kind onto the process exit codes from §6: 0 success,
// 1 user/config error, 2 runtime failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch KindOf(err) {
	case KindConfiguration:
		return 1
	default:
		return 2
	}
}
