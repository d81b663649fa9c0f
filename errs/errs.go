// Package errs defines the fatal error taxonomy shared by the decoder and
// the orchestrator.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a fatal error. Warnings (DuplicateKey, UnknownTopLevelTag,
// CorruptUtf8) are not represented here; they are counted by report.Sidecar
// instead of aborting the run.
type Kind string

const (
	HeaderInvalid      Kind = "header_invalid"
	UnexpectedEOF      Kind = "unexpected_eof"
	BodyLengthMismatch Kind = "body_length_mismatch"
	SubRecordDesync    Kind = "sub_record_desync"
	IOError            Kind = "io_error"
)

// FatalError aborts the pipeline. Offset is the byte position in the input
// stream at which the error was detected, -1 if not applicable.
type FatalError struct {
	Kind   Kind
	Offset int64
	Err    error
}

func (e *FatalError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// New builds a FatalError from a formatted message.
func New(kind Kind, offset int64, format string, args ...interface{}) *FatalError {
	return &FatalError{Kind: kind, Offset: offset, Err: errors.Errorf(format, args...)}
}

// Wrap attaches kind/offset context to an existing error, preserving it via
// errors.Wrap so %+v formatting retains a stack trace in development builds.
func Wrap(kind Kind, offset int64, err error, msg string) *FatalError {
	return &FatalError{Kind: kind, Offset: offset, Err: errors.Wrap(err, msg)}
}

// Is supports errors.Is comparison against a Kind-only sentinel built with
// New(kind, -1, "").
func (e *FatalError) Is(target error) bool {
	te, ok := target.(*FatalError)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}
