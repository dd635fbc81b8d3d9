package dap

import (
	"fmt"

	"github.com/pkg/errors"
)

// Invariant violations. They are always returned wrapped in an InternalError.
var (
	ErrNoPrototype    = errors.New("vector has no element prototype")
	ErrNoStorage      = errors.New("storage is not populated")
	ErrLengthMismatch = errors.New("declared length and data length differ")
	ErrTypeMismatch   = errors.New("value type does not match element type")
	ErrWrongStorage   = errors.New("operation does not apply to this storage kind")
	ErrOutOfRange     = errors.New("index out of range")
	ErrNilValue       = errors.New("nil value")
	ErrShortBuffer    = errors.New("buffer too small")
	ErrUnknownType    = errors.New("unknown type")
	ErrBadMarker      = errors.New("unexpected sequence marker")
	ErrNoGate         = errors.New("no evaluation gate")
)

// ErrTimeout is returned by a Gate once the bookkeeping budget of a response
// has been used up.
var ErrTimeout = errors.New("timeout: the server spent too long preparing the response")

// InternalError reports a defect: broken container invariants, a data source
// that did not do its job, or a stream that no longer matches its declaration.
type InternalError struct {
	Err    error
	Detail string
}

func (e *InternalError) Error() string {
	if e.Detail == "" {
		return "internal error: " + e.Err.Error()
	}
	return "internal error: " + e.Err.Error() + ": " + e.Detail
}

func (e *InternalError) Unwrap() error { return e.Err }

// TransmissionError reports a failed wire read or write. It is recoverable
// and says nothing about the correctness of the server.
type TransmissionError struct {
	Op  string
	Err error
}

func (e *TransmissionError) Error() string {
	return "network I/O error: " + e.Op + ": " + e.Err.Error()
}

func (e *TransmissionError) Unwrap() error { return e.Err }

func internalErr(sentinel error, format string, args ...any) error {
	return errors.WithStack(&InternalError{Err: sentinel, Detail: fmt.Sprintf(format, args...)})
}

func transmissionErr(op string, err error) error {
	return errors.WithStack(&TransmissionError{Op: op, Err: err})
}

// IsInternal reports whether err carries an InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// IsTransmission reports whether err carries a TransmissionError.
func IsTransmission(err error) bool {
	var te *TransmissionError
	return errors.As(err, &te)
}
