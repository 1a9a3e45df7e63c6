package chainsync

import (
	"errors"
	"fmt"

	"github.com/onflow/flow-rangesync/model/flow"
)

// ErrRangeInFlight is returned when blocks are inserted for a range which is
// still marked as being downloaded. It indicates a bug in the caller, which
// must release the peer before inserting its response.
var ErrRangeInFlight = errors.New("range is still being downloaded")

// InFlightInsertError is returned by Insert when the target range is still
// downloading.
type InFlightInsertError struct {
	Start uint64
}

func NewInFlightInsertError(start uint64) error {
	return InFlightInsertError{Start: start}
}

func (e InFlightInsertError) Error() string {
	return fmt.Sprintf("could not insert blocks at height %d: %v", e.Start, ErrRangeInFlight)
}

func (e InFlightInsertError) Unwrap() error {
	return ErrRangeInFlight
}

// IsInFlightInsertError returns whether the given error is an InFlightInsertError.
func IsInFlightInsertError(err error) bool {
	var errInFlight InFlightInsertError
	return errors.As(err, &errInFlight)
}

// UnexpectedRangeStateError is returned by Release when the range recorded for
// the peer is no longer downloading. The assignment is dropped regardless.
type UnexpectedRangeStateError struct {
	Peer  flow.Identifier
	Start uint64
	State string
}

func NewUnexpectedRangeStateError(peer flow.Identifier, start uint64, state string) error {
	return UnexpectedRangeStateError{
		Peer:  peer,
		Start: start,
		State: state,
	}
}

func (e UnexpectedRangeStateError) Error() string {
	return fmt.Sprintf("peer %v was assigned range at height %d, which is %s", e.Peer, e.Start, e.State)
}

// IsUnexpectedRangeStateError returns whether the given error is an UnexpectedRangeStateError.
func IsUnexpectedRangeStateError(err error) bool {
	var errUnexpected UnexpectedRangeStateError
	return errors.As(err, &errUnexpected)
}
