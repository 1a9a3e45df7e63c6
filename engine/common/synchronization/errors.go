package synchronization

import (
	"errors"
)

// ErrUnsolicitedResponse is returned when a peer responds with blocks we have
// not asked it for, or no longer wait for.
var ErrUnsolicitedResponse = errors.New("unsolicited range response")
