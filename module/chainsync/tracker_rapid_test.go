package chainsync

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
	"github.com/onflow/flow-rangesync/module/metrics"
	"github.com/onflow/flow-rangesync/utils/unittest"
)

// trackerMachine drives a tracker the way a sync driver would: peers get
// ranges allocated, answer with a (possibly partial) response or fail, and
// the importer drains whatever is ready.
type trackerMachine struct {
	tracker  *Tracker
	peers    flow.IdentifierList
	best     map[flow.Identifier]uint64
	assigned map[flow.Identifier]chainsync.Range
	head     uint64 // height of the last drained block
}

func newTrackerMachine(t *rapid.T) *trackerMachine {
	tracker, err := New(unittest.Logger(), DefaultConfig(), metrics.NewNoopCollector())
	require.NoError(t, err)

	m := &trackerMachine{
		tracker:  tracker,
		peers:    unittest.IdentifierListFixture(rapid.IntRange(1, 6).Draw(t, "peers")),
		best:     make(map[flow.Identifier]uint64),
		assigned: make(map[flow.Identifier]chainsync.Range),
	}
	for _, peer := range m.peers {
		m.best[peer] = rapid.Uint64Range(0, 500).Draw(t, "peer_best")
	}
	return m
}

func (m *trackerMachine) Allocate(t *rapid.T) {
	peer := rapid.SampledFrom([]flow.Identifier(m.peers)).Draw(t, "peer")
	count := rapid.Uint64Range(1, 64).Draw(t, "count")
	best := m.best[peer]

	previous, hadPrevious := m.assigned[peer]
	delete(m.assigned, peer)

	ran, ok := m.tracker.Allocate(peer, count, best, m.head)
	if !ok {
		// a failed allocation keeps the previous assignment
		start, assigned := m.tracker.Assignment(peer)
		require.Equal(t, hadPrevious, assigned)
		if hadPrevious {
			require.Equal(t, previous.Start, start)
			m.assigned[peer] = previous
		}
		return
	}

	require.False(t, ran.IsEmpty())
	require.LessOrEqual(t, ran.Len(), count)
	require.LessOrEqual(t, ran.End, best+1, "range must not exceed the peer's best height")
	require.Greater(t, ran.Start, m.head, "range must start above the common height")
	for other, otherRange := range m.assigned {
		require.False(t, overlaps(ran, otherRange), "range %v of %v overlaps range %v of %v", ran, peer, otherRange, other)
	}
	m.assigned[peer] = ran
}

func (m *trackerMachine) Respond(t *rapid.T) {
	if len(m.assigned) == 0 {
		t.Skip("no outstanding requests")
	}
	peer := rapid.SampledFrom(m.assignedPeers()).Draw(t, "responder")
	ran := m.assigned[peer]
	count := rapid.Uint64Range(1, ran.Len()).Draw(t, "delivered")

	require.NoError(t, m.tracker.Release(peer))
	delete(m.assigned, peer)
	require.NoError(t, m.tracker.Insert(ran.Start, unittest.BlockPayloadsFixture(ran.Start, ran.Start+count), peer))
}

func (m *trackerMachine) Fail(t *rapid.T) {
	if len(m.assigned) == 0 {
		t.Skip("no outstanding requests")
	}
	peer := rapid.SampledFrom(m.assignedPeers()).Draw(t, "failing")
	require.NoError(t, m.tracker.Release(peer))
	delete(m.assigned, peer)
}

func (m *trackerMachine) Drain(t *rapid.T) {
	drained := m.tracker.Drain(m.head + 1)
	for _, record := range drained {
		block, ok := record.Payload.(*unittest.Block)
		require.True(t, ok)
		require.Equal(t, m.head+1, block.Height, "blocks must be drained in order without gaps")
		require.NotNil(t, record.Origin)
		m.head = block.Height
	}
	require.Empty(t, m.tracker.Drain(m.head+1), "draining twice must not yield more blocks")
}

// Check verifies the tracker invariants after every action.
func (m *trackerMachine) Check(t *rapid.T) {
	var prev *rangeEntry
	downloadingCount, completeCount := 0, 0
	m.tracker.ranges.Ascend(func(entry *rangeEntry) bool {
		if prev != nil {
			require.LessOrEqual(t, prev.end(), entry.start, "ranges %d and %d overlap", prev.start, entry.start)
		}
		switch state := entry.state.(type) {
		case *downloading:
			downloadingCount++
			require.GreaterOrEqual(t, state.active, uint32(1))
			require.LessOrEqual(t, state.active, m.tracker.config.MaxParallelDownloads)
		case *complete:
			completeCount++
			require.NotEmpty(t, state.blocks)
		default:
			require.Fail(t, fmt.Sprintf("unknown range state %T", state))
		}
		prev = entry
		return true
	})
	require.Equal(t, downloadingCount, m.tracker.downloadingCount)
	require.Equal(t, completeCount, m.tracker.completeCount)

	require.Len(t, m.tracker.peers, len(m.assigned))
	for peer, ran := range m.assigned {
		start, ok := m.tracker.Assignment(peer)
		require.True(t, ok)
		require.Equal(t, ran.Start, start)
		entry, found := m.tracker.ranges.Get(&rangeEntry{start: start})
		require.True(t, found)
		_, isDownloading := entry.state.(*downloading)
		require.True(t, isDownloading)
	}
}

// overlaps returns true if both ranges share at least one height.
func overlaps(a, b chainsync.Range) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return a.Start < b.End && b.Start < a.End
}

func (m *trackerMachine) assignedPeers() []flow.Identifier {
	peers := make([]flow.Identifier, 0, len(m.assigned))
	for _, peer := range m.peers {
		if _, ok := m.assigned[peer]; ok {
			peers = append(peers, peer)
		}
	}
	return peers
}

func TestOverlaps(t *testing.T) {
	a := chainsync.Range{Start: 1, End: 41}
	require.True(t, overlaps(a, chainsync.Range{Start: 40, End: 50}))
	require.False(t, overlaps(a, chainsync.Range{Start: 41, End: 81}))
	require.False(t, overlaps(a, chainsync.Range{Start: 20, End: 20}))
}

// TestTrackerRapid runs random sequences of allocations, responses, failures
// and drains against the tracker and checks its invariants along the way.
func TestTrackerRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newTrackerMachine(t)
		t.Repeat(map[string]func(*rapid.T){
			"allocate": m.Allocate,
			"respond":  m.Respond,
			"fail":     m.Fail,
			"drain":    m.Drain,
			"":         m.Check,
		})
	})
}
