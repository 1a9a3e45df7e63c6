package simulation

import (
	"encoding/binary"
	"fmt"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
)

// Block is a simulated block. Its ID is derived from the height, so every
// peer serves the same chain.
type Block struct {
	Height uint64
	ID     flow.Identifier
}

func blockID(height uint64) flow.Identifier {
	var id flow.Identifier
	binary.BigEndian.PutUint64(id[len(id)-8:], height)
	return id
}

// Chain is a simulated canonical chain of blocks with heights [1, Height].
type Chain struct {
	blocks []*Block
}

func NewChain(height uint64) *Chain {
	blocks := make([]*Block, 0, height)
	for h := uint64(1); h <= height; h++ {
		blocks = append(blocks, &Block{Height: h, ID: blockID(h)})
	}
	return &Chain{blocks: blocks}
}

// Height returns the height of the last block.
func (c *Chain) Height() uint64 {
	return uint64(len(c.blocks))
}

// Payloads returns the blocks in the given range which exist at or below best.
func (c *Chain) Payloads(ran chainsync.Range, best uint64) []chainsync.BlockPayload {
	end := ran.End
	if best+1 < end {
		end = best + 1
	}
	if c.Height()+1 < end {
		end = c.Height() + 1
	}
	if ran.Start == 0 || ran.Start >= end {
		return nil
	}

	payloads := make([]chainsync.BlockPayload, 0, end-ran.Start)
	for h := ran.Start; h < end; h++ {
		payloads = append(payloads, c.blocks[h-1])
	}
	return payloads
}

// Verify checks that the payload is the chain's block at the given height.
func (c *Chain) Verify(height uint64, payload chainsync.BlockPayload) error {
	block, ok := payload.(*Block)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}
	if block.Height != height {
		return fmt.Errorf("expected block at height %d, got height %d", height, block.Height)
	}
	if block.ID != blockID(height) {
		return fmt.Errorf("block %v at height %d is not part of the chain", block.ID, height)
	}
	return nil
}
