package module

import (
	"context"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
)

// RangeRequester sends block range requests to peers. Responses arrive
// asynchronously through the sync engine.
type RangeRequester interface {
	// RequestRange asks the given peer for the blocks in the given range.
	// An error means the request could not be sent at all.
	RequestRange(ctx context.Context, peer flow.Identifier, ran chainsync.Range) error
}

// BlockImporter validates and applies downloaded blocks to the local chain.
type BlockImporter interface {
	// Import applies the given blocks, which are ordered by ascending height
	// without gaps, and returns the local height afterwards. When an error is
	// returned, the height is the last height which was imported successfully.
	Import(blocks []chainsync.BlockRecord) (uint64, error)
}
