// Package reconerr defines the failure kinds a reconstruction request can end with.
package reconerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a reconstruction failure.
type Kind int

const (
	Unknown Kind = iota
	InvalidImage
	ShapeMismatch
	EmptyBatch
	InvalidOccupancy
	ContractViolation
	CapabilityUnavailable
)

var kindNames = map[Kind]string{
	Unknown:               "Unknown",
	InvalidImage:          "InvalidImage",
	ShapeMismatch:         "ShapeMismatch",
	EmptyBatch:            "EmptyBatch",
	InvalidOccupancy:      "InvalidOccupancy",
	ContractViolation:     "ContractViolation",
	CapabilityUnavailable: "CapabilityUnavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether the kind points at a broken collaborator
// rather than bad input.
func (k Kind) Fatal() bool {
	return k == ContractViolation || k == CapabilityUnavailable
}

// Error is a classified failure. Index is the offending image index,
// or -1 when the failure is not tied to one input.
type Error struct {
	Kind  Kind
	Op    string
	Index int
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Index >= 0 {
		msg += fmt.Sprintf(" (image %d)", e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind not tied to an input index.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Index: -1, Err: errors.New(msg)}
}

// Newf is New with formatting.
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Index: -1, Err: errors.Errorf(format, args...)}
}

// AtIndex returns an error of the given kind blamed on image index.
func AtIndex(kind Kind, op string, index int, err error) error {
	return &Error{Kind: kind, Op: op, Index: index, Err: err}
}

// Wrap classifies err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Index: -1, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IndexOf returns the offending image index, or -1.
func IndexOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Index
	}
	return -1
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err should surface as a server-side failure.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}
