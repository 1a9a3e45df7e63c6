package chainsync

import (
	"github.com/onflow/flow-rangesync/model/chainsync"
)

// rangeState is the state of a tracked range. It is either *downloading or
// *complete; there are no other implementations.
type rangeState interface {
	// length returns the number of heights covered by the range.
	length() uint64
	String() string
}

// downloading is a range which has been handed out to at least one peer and
// for which no blocks have been inserted yet.
type downloading struct {
	len    uint64
	active uint32 // peers currently assigned to the range, always >= 1
}

func (d *downloading) length() uint64 { return d.len }

func (d *downloading) String() string { return "downloading" }

// complete is a range for which blocks have arrived. The blocks are ordered by
// ascending height, starting at the height the range is keyed by.
type complete struct {
	blocks []chainsync.BlockRecord
}

func (c *complete) length() uint64 { return uint64(len(c.blocks)) }

func (c *complete) String() string { return "complete" }

// rangeEntry is the item stored in the range tree, ordered by start height.
type rangeEntry struct {
	start uint64
	state rangeState
}

func (e *rangeEntry) end() uint64 {
	return e.start + e.state.length()
}

func rangeEntryLess(a, b *rangeEntry) bool {
	return a.start < b.start
}
