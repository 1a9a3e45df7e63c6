package module

import (
	"time"

	"github.com/onflow/flow-rangesync/model/chainsync"
)

// RangeTrackerMetrics is implemented by collectors observing the block range
// tracker used during chain synchronization.
type RangeTrackerMetrics interface {
	// RangeAllocated is called whenever a range is assigned to a peer.
	RangeAllocated(ran chainsync.Range)

	// RangeReleased is called whenever a peer assignment is cleared. abandoned is
	// true if no other peer is still downloading the range, so it was dropped.
	RangeReleased(abandoned bool)

	// BlocksInserted records the number of blocks accepted into a complete range.
	BlocksInserted(count int)

	// InsertRejected records an insert which did not change the tracker state.
	InsertRejected(reason string)

	// BlocksDrained records the number of blocks handed over for import.
	BlocksDrained(count int)

	// TrackedRanges reports the current number of ranges by state.
	TrackedRanges(downloading, complete int)
}

// SyncEngineMetrics is implemented by collectors observing the sync engine
// which drives the range tracker.
type SyncEngineMetrics interface {
	// RequestSent records a range request dispatched to a peer.
	RequestSent()

	// RequestFailed records a range request which could not be sent.
	RequestFailed()

	// RequestTimedOut records a request whose response did not arrive in time.
	RequestTimedOut()

	// ResponseReceived records the round trip of a range response.
	ResponseReceived(duration time.Duration)

	// BlocksImported records a successful import and the new local height.
	BlocksImported(count int, height uint64)

	// ActivePeers reports the number of peers known to the engine.
	ActivePeers(count int)

	// ImportQueueLength reports the number of block batches waiting for import.
	ImportQueueLength(length int)
}
