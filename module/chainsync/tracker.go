package chainsync

import (
	"fmt"

	"github.com/google/btree"
	"github.com/rs/zerolog"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
	"github.com/onflow/flow-rangesync/module"
	"github.com/onflow/flow-rangesync/module/irrecoverable"
)

const (
	// DefaultMaxParallelDownloads is the default number of peers which may be
	// assigned the same unfinished range at the same time.
	DefaultMaxParallelDownloads uint32 = 1

	// rangeTreeDegree is the degree of the B-tree holding the ranges.
	rangeTreeDegree = 32
)

// reasons reported to the metrics when an insert does not change the tracker
const (
	RejectEmptyBatch    = "empty_batch"
	RejectInFlight      = "in_flight"
	RejectInferiorBatch = "inferior_batch"
)

type Config struct {
	MaxParallelDownloads uint32 // the maximum number of peers concurrently assigned to the same range
}

func DefaultConfig() Config {
	return Config{
		MaxParallelDownloads: DefaultMaxParallelDownloads,
	}
}

// Tracker keeps track of which block height ranges are being downloaded from
// which peer, and which ranges have already been downloaded and wait to be
// imported.
//
// Ranges are keyed by their start height and never overlap. A peer is assigned
// at most one range at a time. Completed ranges are handed out by Drain in
// ascending height order, and only once the heights before them are complete.
//
// Tracker is NOT safe for concurrent use. Callers serialize access to it,
// typically by guarding it with a single mutex.
type Tracker struct {
	log     zerolog.Logger
	config  Config
	metrics module.RangeTrackerMetrics

	ranges *btree.BTreeG[*rangeEntry]
	peers  map[flow.Identifier]uint64 // peer -> start of the range assigned to it

	downloadingCount int
	completeCount    int
}

func New(log zerolog.Logger, config Config, metrics module.RangeTrackerMetrics) (*Tracker, error) {
	if config.MaxParallelDownloads == 0 {
		return nil, fmt.Errorf("invalid max parallel downloads: must be at least 1")
	}

	t := &Tracker{
		log:     log.With().Str("component", "range_tracker").Logger(),
		config:  config,
		metrics: metrics,
		ranges:  btree.NewG[*rangeEntry](rangeTreeDegree, rangeEntryLess),
		peers:   make(map[flow.Identifier]uint64),
	}
	return t, nil
}

// Clear drops all ranges and peer assignments. It is used when a sync session
// restarts.
func (t *Tracker) Clear() {
	t.ranges.Clear(false)
	t.peers = make(map[flow.Identifier]uint64)
	t.downloadingCount = 0
	t.completeCount = 0
	t.reportRanges()
	t.log.Debug().Msg("cleared all ranges")
}

// Len returns the number of tracked ranges.
func (t *Tracker) Len() int {
	return t.ranges.Len()
}

// Assignment returns the start height of the range currently assigned to the
// given peer.
func (t *Tracker) Assignment(peer flow.Identifier) (uint64, bool) {
	start, ok := t.peers[peer]
	return start, ok
}

// Allocate determines the next range of at most count heights that should be
// requested from the given peer, and marks it as being downloaded by the peer.
//
// The search starts at common+1 if nothing is tracked yet. A range which is
// downloading by fewer than MaxParallelDownloads peers is reused as is;
// otherwise the first gap between tracked ranges, or the heights right after
// the last range, are used. The result is cropped so it does not extend past
// peerBest. If the peer can't serve any useful heights, false is returned.
//
// A previous assignment of the peer is released when a new range is allocated.
// If no range is allocated, the previous assignment is kept as it was.
func (t *Tracker) Allocate(peer flow.Identifier, count uint64, peerBest uint64, common uint64) (chainsync.Range, bool) {
	log := t.log.With().
		Hex("peer", peer[:]).
		Uint64("count", count).
		Uint64("peer_best", peerBest).
		Uint64("common", common).
		Logger()

	if count == 0 {
		log.Trace().Msg("nothing requested")
		return chainsync.Range{}, false
	}

	// the peer's own range is a candidate for the new allocation
	previous, err := t.detach(peer)
	if err != nil {
		log.Warn().Err(err).Msg("dropped inconsistent previous assignment")
	}

	ran, active := t.nextRange(count, common+1)

	// crop to the peer's best height
	if ran.Start > peerBest {
		if previous != nil {
			t.reattach(peer, previous)
		}
		log.Trace().Str("range", ran.String()).Msg("out of range for peer")
		return chainsync.Range{}, false
	}
	if ran.End > peerBest+1 {
		ran.End = peerBest + 1
	}
	if ran.IsEmpty() {
		panic(irrecoverable.NewExceptionf("allocated empty range %v for peer %v (count=%d, peer_best=%d, common=%d, ranges=%d)",
			ran, peer, count, peerBest, common, t.ranges.Len()))
	}

	length := ran.Len()
	if existing, ok := t.ranges.Get(&rangeEntry{start: ran.Start}); ok && active > 0 {
		// another peer is downloading this range already, don't shrink it
		if existing.state.length() > length {
			length = existing.state.length()
		}
	}
	t.put(&rangeEntry{
		start: ran.Start,
		state: &downloading{len: length, active: active + 1},
	})
	t.peers[peer] = ran.Start

	if previous != nil {
		t.metrics.RangeReleased(previous.removed)
	}
	t.metrics.RangeAllocated(ran)
	t.reportRanges()
	log.Debug().Str("range", ran.String()).Uint32("active", active+1).Msg("allocated range")

	return ran, true
}

// nextRange scans the ranges in ascending order and returns the candidate
// range together with the number of peers already downloading it.
func (t *Tracker) nextRange(count uint64, firstNeeded uint64) (chainsync.Range, uint32) {
	var (
		prev   *rangeEntry
		ran    chainsync.Range
		active uint32
		found  bool
	)
	t.ranges.Ascend(func(next *rangeEntry) bool {
		ran, active, found = t.candidate(prev, next, count, firstNeeded)
		if found {
			return false
		}
		prev = next
		return true
	})
	if !found {
		// past the last range, or no ranges at all; always yields a candidate
		ran, active, _ = t.candidate(prev, nil, count, firstNeeded)
	}
	return ran, active
}

// candidate checks whether a range can be allocated at or right after prev,
// given the range following it. Either entry may be nil.
func (t *Tracker) candidate(prev, next *rangeEntry, count uint64, firstNeeded uint64) (chainsync.Range, uint32, bool) {
	if prev != nil {
		if d, ok := prev.state.(*downloading); ok && d.active < t.config.MaxParallelDownloads {
			return chainsync.NewRange(prev.start, d.len), d.active, true
		}
		end := prev.end()
		if next == nil {
			// after the last range
			return chainsync.NewRange(end, count), 0, true
		}
		if end < next.start {
			// gap between the two ranges
			return chainsync.Range{Start: end, End: min(next.start, end+count)}, 0, true
		}
		return chainsync.Range{}, 0, false
	}

	if next == nil {
		// nothing tracked
		return chainsync.NewRange(firstNeeded, count), 0, true
	}
	if next.start > firstNeeded {
		// gap before the first range
		return chainsync.Range{Start: firstNeeded, End: min(firstNeeded+count, next.start)}, 0, true
	}
	return chainsync.Range{}, 0, false
}

// Insert registers the blocks downloaded by origin for the range starting at
// start. Empty batches, and batches which are not larger than an already
// completed range at the same start, are ignored. Inserting for a range that is
// still downloading returns an InFlightInsertError and leaves the state as is.
func (t *Tracker) Insert(start uint64, blocks []chainsync.BlockPayload, origin flow.Identifier) error {
	log := t.log.With().
		Uint64("start", start).
		Int("blocks", len(blocks)).
		Hex("origin", origin[:]).
		Logger()

	if len(blocks) == 0 {
		t.metrics.InsertRejected(RejectEmptyBatch)
		log.Trace().Msg("ignored empty block batch")
		return nil
	}

	existing, ok := t.ranges.Get(&rangeEntry{start: start})
	if ok {
		switch state := existing.state.(type) {
		case *downloading:
			t.metrics.InsertRejected(RejectInFlight)
			log.Warn().Uint32("active", state.active).Msg("ignored block data still marked as being downloaded")
			return NewInFlightInsertError(start)
		case *complete:
			if len(state.blocks) >= len(blocks) {
				t.metrics.InsertRejected(RejectInferiorBatch)
				log.Trace().Int("existing", len(state.blocks)).Msg("ignored block data already downloaded")
				return nil
			}
		}
	}

	t.put(&rangeEntry{
		start: start,
		state: &complete{blocks: chainsync.NewBlockRecords(blocks, origin)},
	})

	t.metrics.BlocksInserted(len(blocks))
	t.reportRanges()
	log.Debug().Msg("inserted blocks")

	return nil
}

// Drain removes and returns the blocks of all completed ranges which form a
// contiguous sequence starting at or below from. Blocks are returned in
// ascending height order. Draining stops at the first range which is still
// downloading or which leaves a gap. If nothing can be imported yet, an empty
// slice is returned.
func (t *Tracker) Drain(from uint64) []chainsync.BlockRecord {
	var drained []chainsync.BlockRecord
	var consumed []uint64

	next := from
	t.ranges.Ascend(func(entry *rangeEntry) bool {
		done, ok := entry.state.(*complete)
		if !ok || entry.start > next {
			return false
		}
		next = entry.start + done.length()
		drained = append(drained, done.blocks...)
		consumed = append(consumed, entry.start)
		return true
	})

	for _, start := range consumed {
		t.remove(start)
	}

	if len(consumed) > 0 {
		t.metrics.BlocksDrained(len(drained))
		t.reportRanges()
	}
	t.log.Trace().Uint64("from", from).Int("ranges", len(consumed)).Msgf("drained %d blocks", len(drained))

	return drained
}

// Release clears the assignment of the given peer, e.g. because it
// disconnected, timed out or responded. If no other peer downloads the
// assigned range, the range is dropped so it can be allocated again. It is a
// no-op for peers without an assignment. If the assigned range is no longer
// downloading, an UnexpectedRangeStateError is returned; the assignment is
// cleared nonetheless.
func (t *Tracker) Release(peer flow.Identifier) error {
	err := t.release(peer)
	t.reportRanges()
	return err
}

func (t *Tracker) release(peer flow.Identifier) error {
	detached, err := t.detach(peer)
	if err != nil {
		t.log.Warn().Err(err).Hex("peer", peer[:]).Msg("released peer with inconsistent assignment")
		return err
	}
	if detached == nil {
		return nil
	}

	t.metrics.RangeReleased(detached.removed)
	t.log.Debug().
		Hex("peer", peer[:]).
		Uint64("start", detached.start).
		Bool("abandoned", detached.removed).
		Msg("released peer")
	return nil
}

// detachedRange remembers a cleared assignment, so it can be restored.
type detachedRange struct {
	start   uint64
	state   *downloading
	removed bool // the peer was the only downloader and the range was dropped
}

// detach clears the peer's assignment without reporting it. It returns nil if
// the peer had none. An assignment to a range which is not downloading is
// dropped and reported as UnexpectedRangeStateError.
func (t *Tracker) detach(peer flow.Identifier) (*detachedRange, error) {
	start, ok := t.peers[peer]
	if !ok {
		return nil, nil
	}
	delete(t.peers, peer)

	entry, ok := t.ranges.Get(&rangeEntry{start: start})
	if !ok {
		return nil, NewUnexpectedRangeStateError(peer, start, "missing")
	}
	state, ok := entry.state.(*downloading)
	if !ok {
		return nil, NewUnexpectedRangeStateError(peer, start, entry.state.String())
	}

	if state.active > 1 {
		state.active--
		return &detachedRange{start: start, state: state}, nil
	}
	t.remove(start)
	return &detachedRange{start: start, state: state, removed: true}, nil
}

// reattach undoes detach. The tracker must not have changed in between.
func (t *Tracker) reattach(peer flow.Identifier, detached *detachedRange) {
	if detached.removed {
		t.put(&rangeEntry{start: detached.start, state: detached.state})
	} else {
		detached.state.active++
	}
	t.peers[peer] = detached.start
}

// put inserts or replaces the entry at its start height.
func (t *Tracker) put(entry *rangeEntry) {
	if old, replaced := t.ranges.ReplaceOrInsert(entry); replaced {
		t.count(old.state, -1)
	}
	t.count(entry.state, 1)
}

// remove deletes the entry at the given start height, if any.
func (t *Tracker) remove(start uint64) {
	if old, removed := t.ranges.Delete(&rangeEntry{start: start}); removed {
		t.count(old.state, -1)
	}
}

func (t *Tracker) count(state rangeState, delta int) {
	switch state.(type) {
	case *downloading:
		t.downloadingCount += delta
	case *complete:
		t.completeCount += delta
	}
}

func (t *Tracker) reportRanges() {
	t.metrics.TrackedRanges(t.downloadingCount, t.completeCount)
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
