package models

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	MalformedBinary
	IncompatibleArchitecture
	UnresolvedSymbol
	MemoryFault
)

var kindNames = map[ErrorKind]string{
	KindNone:                 "error",
	MalformedBinary:          "malformed binary",
	IncompatibleArchitecture: "incompatible architecture",
	UnresolvedSymbol:         "unresolved symbol",
	MemoryFault:              "memory fault",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// LoadError classifies every failure returned by the loader.
type LoadError struct {
	Kind ErrorKind
	Err  error
}

func (e *LoadError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

// Cause and Unwrap expose the underlying error, which carries the stack trace.
func (e *LoadError) Cause() error  { return e.Err }
func (e *LoadError) Unwrap() error { return e.Err }

// KindError wraps err as kind. A nil err stays nil.
func KindError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Kind: kind, Err: errors.WithStack(err)}
}

func KindErrorf(kind ErrorKind, format string, args ...interface{}) error {
	return &LoadError{Kind: kind, Err: errors.Errorf(format, args...)}
}

func WrapKind(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &LoadError{Kind: kind, Err: errors.Wrap(err, msg)}
}

// KindOf returns the kind of the first LoadError in err's chain, or KindNone.
func KindOf(err error) ErrorKind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindNone
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
