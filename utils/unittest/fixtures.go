package unittest

import (
	crand "crypto/rand"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
)

// Block is a stand-in for a decoded block used as payload in tests.
type Block struct {
	Height uint64
	ID     flow.Identifier
}

func IdentifierListFixture(n int) flow.IdentifierList {
	list := make([]flow.Identifier, n)
	for i := 0; i < n; i++ {
		list[i] = IdentifierFixture()
	}
	return list
}

func IdentifierFixture() flow.Identifier {
	var id flow.Identifier
	_, _ = crand.Read(id[:])
	return id
}

// BlockFixture returns a block with a random ID at the given height.
func BlockFixture(height uint64) *Block {
	return &Block{
		Height: height,
		ID:     IdentifierFixture(),
	}
}

// BlockPayloadsFixture returns payloads for the blocks at heights [from, to).
func BlockPayloadsFixture(from, to uint64) []chainsync.BlockPayload {
	payloads := make([]chainsync.BlockPayload, 0, to-from)
	for height := from; height < to; height++ {
		payloads = append(payloads, BlockFixture(height))
	}
	return payloads
}

// BlockRecordsFixture tags the given payloads with the origin, the way they are
// expected to be drained.
func BlockRecordsFixture(payloads []chainsync.BlockPayload, origin flow.Identifier) []chainsync.BlockRecord {
	return chainsync.NewBlockRecords(payloads, origin)
}
