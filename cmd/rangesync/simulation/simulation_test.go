package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
	"github.com/onflow/flow-rangesync/utils/unittest"
)

func TestChainPayloads(t *testing.T) {
	chain := NewChain(100)
	require.Equal(t, uint64(100), chain.Height())

	payloads := chain.Payloads(chainsync.NewRange(10, 5), 100)
	require.Len(t, payloads, 5)
	for i, payload := range payloads {
		assert.NoError(t, chain.Verify(uint64(10+i), payload))
	}

	// cut to the peer's best height and to the chain
	assert.Len(t, chain.Payloads(chainsync.NewRange(90, 20), 95), 6)
	assert.Len(t, chain.Payloads(chainsync.NewRange(90, 20), 200), 11)
	assert.Empty(t, chain.Payloads(chainsync.NewRange(96, 5), 95))
	assert.Empty(t, chain.Payloads(chainsync.NewRange(0, 5), 95))
}

func TestChainVerify(t *testing.T) {
	chain := NewChain(10)
	assert.Error(t, chain.Verify(3, chain.blocks[1]))
	assert.Error(t, chain.Verify(3, &Block{Height: 3, ID: unittest.IdentifierFixture()}))
	assert.Error(t, chain.Verify(3, "block"))
	assert.NoError(t, chain.Verify(3, chain.blocks[2]))
}

func TestImporter(t *testing.T) {
	chain := NewChain(20)
	importer := NewImporter(unittest.Logger(), chain, 20, nil)
	origin := unittest.IdentifierFixture()

	height, err := importer.Import(chainsync.NewBlockRecords(chain.Payloads(chainsync.NewRange(1, 10), 20), origin))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), height)
	unittest.RequireNeverClosedWithin(t, importer.Reached(), 10*time.Millisecond, "target not reached yet")

	// a gap is rejected, the height stays
	height, err = importer.Import(chainsync.NewBlockRecords(chain.Payloads(chainsync.NewRange(12, 5), 20), origin))
	require.Error(t, err)
	assert.Equal(t, uint64(10), height)

	height, err = importer.Import(chainsync.NewBlockRecords(chain.Payloads(chainsync.NewRange(11, 10), 20), origin))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), height)
	unittest.RequireCloseBefore(t, importer.Reached(), 10*time.Millisecond, "target reached")
}

type recordingHandler struct {
	mu        sync.Mutex
	responses map[uint64][]chainsync.BlockPayload
}

func (h *recordingHandler) OnBlockResponse(peer flow.Identifier, start uint64, blocks []chainsync.BlockPayload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses[start] = blocks
	return nil
}

func TestNetwork(t *testing.T) {
	chain := NewChain(100)
	_, err := NewNetwork(unittest.Logger(), chain, NetworkConfig{Peers: 0})
	require.Error(t, err)
	_, err = NewNetwork(unittest.Logger(), chain, NetworkConfig{Peers: 1, FailRate: 1})
	require.Error(t, err)

	network, err := NewNetwork(unittest.Logger(), chain, NetworkConfig{Peers: 5, Latency: time.Millisecond, Seed: 1})
	require.NoError(t, err)
	handler := &recordingHandler{responses: make(map[uint64][]chainsync.BlockPayload)}
	network.Attach(handler)

	peers := network.Peers()
	require.Len(t, peers, 5)
	full := 0
	for _, peer := range peers {
		assert.GreaterOrEqual(t, peer.Best, uint64(50))
		assert.LessOrEqual(t, peer.Best, uint64(100))
		if peer.Best == 100 {
			full++
		}
	}
	assert.GreaterOrEqual(t, full, 1, "one peer must have the full chain")

	err = network.RequestRange(context.Background(), unittest.IdentifierFixture(), chainsync.NewRange(1, 10))
	require.ErrorIs(t, err, ErrUnknownPeer)

	for i, peer := range peers {
		start := uint64(1 + 10*i)
		require.NoError(t, network.RequestRange(context.Background(), peer.ID, chainsync.NewRange(start, 10)))
	}
	unittest.RequireReturnsBefore(t, network.Wait, time.Second)

	assert.Len(t, handler.responses, 5)
	stats := network.Stats()
	assert.Equal(t, uint64(5), stats.Requests)
	assert.Equal(t, uint64(5), stats.Responses)
	assert.Zero(t, stats.Failed+stats.Dropped+stats.Stale)
	assert.Less(t, stats.LatencyMedian, time.Millisecond)
	assert.LessOrEqual(t, stats.LatencyMedian, stats.LatencyP95)
}

func TestImporterPastTarget(t *testing.T) {
	chain := NewChain(20)
	importer := NewImporter(unittest.Logger(), chain, 10, nil)
	origin := unittest.IdentifierFixture()

	_, err := importer.Import(chainsync.NewBlockRecords(chain.Payloads(chainsync.NewRange(1, 10), 20), origin))
	require.NoError(t, err)
	unittest.RequireCloseBefore(t, importer.Reached(), 10*time.Millisecond, "target reached")

	// importing beyond the target keeps the signal closed
	height, err := importer.Import(chainsync.NewBlockRecords(chain.Payloads(chainsync.NewRange(11, 10), 20), origin))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), height)
}
