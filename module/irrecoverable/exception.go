package irrecoverable

import (
	"errors"
	"fmt"
)

var exceptionSentinel = errors.New("exception")

// Exception is used to wrap any error which indicates an unexpected error,
// i.e. a bug in the implementation rather than an input or network condition.
// Exceptions cannot be handled by the caller and always lead to the process
// (or at least the component) being torn down.
type Exception struct {
	err error
}

func (e Exception) Error() string {
	return e.err.Error()
}

func (e Exception) Unwrap() error {
	return e.err
}

func (e Exception) Is(other error) bool {
	return other == exceptionSentinel
}

// NewExceptionf returns an error with the given message wrapped in an Exception.
func NewExceptionf(msg string, args ...interface{}) error {
	return NewException(fmt.Errorf(msg, args...))
}

// NewException wraps the input error as an exception. The returned error
// still allows inspection of the underlying error chain.
func NewException(err error) error {
	return Exception{err: err}
}

// IsException returns true if err is, or wraps, an exception.
func IsException(err error) bool {
	return errors.Is(err, exceptionSentinel)
}
