package synchronization

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/onflow/flow-rangesync/engine"
	"github.com/onflow/flow-rangesync/engine/common/fifoqueue"
	modelchainsync "github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
	"github.com/onflow/flow-rangesync/module"
	"github.com/onflow/flow-rangesync/module/chainsync"
	"github.com/onflow/flow-rangesync/module/component"
	"github.com/onflow/flow-rangesync/module/irrecoverable"
)

// peerStatus is what the engine knows about a connected peer.
type peerStatus struct {
	best    uint64
	request *pendingRequest // nil while the peer is idle
}

type pendingRequest struct {
	ran  modelchainsync.Range
	sent time.Time
}

// parkedResponse holds blocks that arrived for a range other peers were still
// downloading. They are inserted once the range stops downloading.
type parkedResponse struct {
	origin flow.Identifier
	blocks []modelchainsync.BlockPayload
}

// Engine drives block synchronization: it hands out height ranges to peers,
// collects their responses in a range tracker and feeds the importer with the
// blocks in ascending order.
//
// All access to the tracker happens under a single lock. Requests are sent by
// a pool of dispatch workers, and blocks are imported by a dedicated worker, so
// neither network nor import latency is incurred while holding the lock.
type Engine struct {
	*component.ComponentManager
	log       zerolog.Logger
	metrics   module.SyncEngineMetrics
	config    Config
	requester module.RangeRequester
	importer  module.BlockImporter

	dispatcher     *workerpool.WorkerPool
	importNotifier engine.Notifier

	mu             sync.Mutex
	tracker        *chainsync.Tracker
	peers          map[flow.Identifier]*peerStatus
	head           uint64 // height of the last block handed over for import
	imported       uint64 // height reported by the importer
	session        uint64 // incremented on every restart
	parked         map[uint64]*parkedResponse
	pendingImports *fifoqueue.FifoQueue[[]modelchainsync.BlockRecord]
}

// New creates a new sync engine, which starts at the given local height.
func New(
	log zerolog.Logger,
	metrics module.SyncEngineMetrics,
	trackerMetrics module.RangeTrackerMetrics,
	requester module.RangeRequester,
	importer module.BlockImporter,
	localHeight uint64,
	opts ...OptionFunc,
) (*Engine, error) {

	cfg := DefaultConfig()
	for _, f := range opts {
		f(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync engine config: %w", err)
	}

	log = log.With().Str("engine", "synchronization").Logger()

	tracker, err := chainsync.New(log, chainsync.Config{MaxParallelDownloads: cfg.MaxParallelDownloads}, trackerMetrics)
	if err != nil {
		return nil, fmt.Errorf("could not create range tracker: %w", err)
	}

	pendingImports, err := fifoqueue.NewFifoQueue[[]modelchainsync.BlockRecord](
		fifoqueue.WithLengthObserver(metrics.ImportQueueLength),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create import queue: %w", err)
	}

	e := &Engine{
		log:            log,
		metrics:        metrics,
		config:         *cfg,
		requester:      requester,
		importer:       importer,
		importNotifier: engine.NewNotifier(),
		tracker:        tracker,
		pendingImports: pendingImports,
		peers:          make(map[flow.Identifier]*peerStatus),
		parked:         make(map[uint64]*parkedResponse),
		head:           localHeight,
		imported:       localHeight,
	}

	e.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(e.scanLoop).
		AddWorker(e.importLoop).
		Build()

	return e, nil
}

// Head returns the height up to which blocks were handed over for import.
func (e *Engine) Head() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head
}

// ImportedHeight returns the latest height reported by the importer.
func (e *Engine) ImportedHeight() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.imported
}

// OnPeerStatus registers a peer, or updates the best height it claims to have.
func (e *Engine) OnPeerStatus(peer flow.Identifier, best uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status, ok := e.peers[peer]
	if !ok {
		status = &peerStatus{}
		e.peers[peer] = status
		e.metrics.ActivePeers(len(e.peers))
	}
	status.best = best

	e.log.Debug().Hex("peer", peer[:]).Uint64("best", best).Msg("peer status updated")
}

// OnPeerDisconnected forgets the peer and gives up on its outstanding request.
func (e *Engine) OnPeerDisconnected(peer flow.Identifier) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.peers[peer]; !ok {
		return
	}
	e.abandonRequest(peer)
	delete(e.peers, peer)
	e.metrics.ActivePeers(len(e.peers))

	e.log.Debug().Hex("peer", peer[:]).Msg("peer disconnected")
}

// OnBlockResponse processes the blocks a peer sent in response to a range
// request. Responses we are not waiting for are rejected with
// ErrUnsolicitedResponse. Blocks beyond the requested range are discarded.
func (e *Engine) OnBlockResponse(peer flow.Identifier, start uint64, blocks []modelchainsync.BlockPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.log.With().Hex("peer", peer[:]).Uint64("start", start).Int("blocks", len(blocks)).Logger()

	status, ok := e.peers[peer]
	if !ok || status.request == nil || status.request.ran.Start != start {
		log.Debug().Msg("discarding unsolicited response")
		return fmt.Errorf("response from %v for height %d: %w", peer, start, ErrUnsolicitedResponse)
	}

	ran := status.request.ran
	e.metrics.ResponseReceived(time.Since(status.request.sent))
	e.releasePeer(peer)

	if uint64(len(blocks)) > ran.Len() {
		blocks = blocks[:ran.Len()]
	}

	err := e.tracker.Insert(start, blocks, peer)
	if chainsync.IsInFlightInsertError(err) {
		log.Debug().Err(err).Msg("range still downloading by another peer, parking response")
		e.park(start, peer, blocks)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not insert blocks: %w", err)
	}

	// a larger parked response for the same range replaces ours
	e.flushParked(start)
	e.drain()
	return nil
}

// Restart drops all sync progress and continues from the given local height.
// Responses to requests sent before the restart are discarded.
func (e *Engine) Restart(localHeight uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restart(localHeight)
}

func (e *Engine) restart(localHeight uint64) {
	e.tracker.Clear()
	for _, status := range e.peers {
		status.request = nil
	}
	e.pendingImports.Clear()
	e.parked = make(map[uint64]*parkedResponse)
	e.session++
	e.head = localHeight
	e.imported = localHeight

	e.log.Info().Uint64("height", localHeight).Msg("sync session restarted")
}

// releasePeer clears the peer's outstanding request, if any, and returns the
// start of the released range.
// Must be called while holding the lock.
func (e *Engine) releasePeer(peer flow.Identifier) (uint64, bool) {
	status, ok := e.peers[peer]
	if !ok || status.request == nil {
		return 0, false
	}
	start := status.request.ran.Start
	status.request = nil

	err := e.tracker.Release(peer)
	if err != nil {
		e.log.Warn().Err(err).Hex("peer", peer[:]).Msg("inconsistent range assignment released")
	}
	return start, true
}

// abandonRequest releases the peer without a response. If another peer already
// delivered the range, its parked blocks are used instead of downloading the
// range again.
// Must be called while holding the lock.
func (e *Engine) abandonRequest(peer flow.Identifier) {
	start, ok := e.releasePeer(peer)
	if ok {
		e.flushParked(start)
	}
}

// park keeps the largest response received for a range that is still downloading.
// Must be called while holding the lock.
func (e *Engine) park(start uint64, origin flow.Identifier, blocks []modelchainsync.BlockPayload) {
	if parked, ok := e.parked[start]; ok && len(parked.blocks) >= len(blocks) {
		return
	}
	e.parked[start] = &parkedResponse{origin: origin, blocks: blocks}
}

// flushParked inserts the parked response for the range at start, unless the
// range is still downloading.
// Must be called while holding the lock.
func (e *Engine) flushParked(start uint64) {
	parked, ok := e.parked[start]
	if !ok {
		return
	}
	if start <= e.head {
		delete(e.parked, start)
		return
	}

	err := e.tracker.Insert(start, parked.blocks, parked.origin)
	if chainsync.IsInFlightInsertError(err) {
		return
	}
	delete(e.parked, start)
	if err != nil {
		e.log.Warn().Err(err).Uint64("start", start).Msg("could not insert parked blocks")
		return
	}
	e.drain()
}

// drain moves all importable blocks to the import queue.
// Must be called while holding the lock.
func (e *Engine) drain() {
	records := e.tracker.Drain(e.head + 1)
	if len(records) == 0 {
		return
	}

	e.head += uint64(len(records))
	e.pendingImports.Push(records)
	e.importNotifier.Notify()

	e.log.Debug().Int("blocks", len(records)).Uint64("head", e.head).Msg("queued blocks for import")
}

// scanLoop periodically times out requests and tasks idle peers.
func (e *Engine) scanLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	e.dispatcher = workerpool.New(int(e.config.DispatchWorkers))
	defer e.dispatcher.StopWait()

	ticker := time.NewTicker(e.config.ScanInterval)
	defer ticker.Stop()

	ready()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scan(ctx)
		}
	}
}

// scan releases requests which timed out and allocates ranges to all idle
// peers. The resulting requests are sent by the dispatch workers.
func (e *Engine) scan(ctx context.Context) {
	e.mu.Lock()
	now := time.Now()

	for peer, status := range e.peers {
		if status.request == nil || now.Sub(status.request.sent) < e.config.RequestTimeout {
			continue
		}
		e.log.Debug().Hex("peer", peer[:]).Str("range", status.request.ran.String()).Msg("range request timed out")
		e.metrics.RequestTimedOut()
		e.abandonRequest(peer)
	}

	type request struct {
		peer flow.Identifier
		ran  modelchainsync.Range
	}
	var requests []request
	for peer, status := range e.peers {
		if status.request != nil {
			continue
		}
		ran, ok := e.tracker.Allocate(peer, e.config.BatchSize, status.best, e.head)
		if !ok {
			continue
		}
		status.request = &pendingRequest{ran: ran, sent: now}
		requests = append(requests, request{peer: peer, ran: ran})
	}
	e.mu.Unlock()

	for _, req := range requests {
		req := req
		e.dispatcher.Submit(func() {
			e.send(ctx, req.peer, req.ran)
		})
	}
}

// send sends a single range request, retrying with exponential backoff while
// the request is still pending. If all attempts fail, the peer is released.
func (e *Engine) send(ctx context.Context, peer flow.Identifier, ran modelchainsync.Range) {
	backoff, err := retry.NewExponential(e.config.SendRetryDelay)
	irrecoverable.MustNotFail(err, "invalid send retry delay")

	abandoned := false
	err = retry.Do(ctx, retry.WithMaxRetries(e.config.SendRetries, backoff), func(ctx context.Context) error {
		if !e.isPending(peer, ran) {
			abandoned = true
			return nil
		}
		err := e.requester.RequestRange(ctx, peer, ran)
		if err != nil {
			e.log.Debug().Err(err).Hex("peer", peer[:]).Str("range", ran.String()).Msg("range request failed, retrying")
		}
		return retry.RetryableError(err)
	})
	if abandoned {
		return
	}
	if err == nil {
		e.metrics.RequestSent()
		return
	}

	e.metrics.RequestFailed()
	e.log.Warn().Err(err).Hex("peer", peer[:]).Str("range", ran.String()).Msg("could not send range request")

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending(peer, ran) {
		e.abandonRequest(peer)
	}
}

// isPending returns true if the peer is still waiting for the given range.
func (e *Engine) isPending(peer flow.Identifier, ran modelchainsync.Range) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending(peer, ran)
}

// pending must be called while holding the lock.
func (e *Engine) pending(peer flow.Identifier, ran modelchainsync.Range) bool {
	status, ok := e.peers[peer]
	return ok && status.request != nil && status.request.ran == ran
}

// importLoop hands drained blocks to the importer, in the order they were drained.
func (e *Engine) importLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.importNotifier.Channel():
			e.processImports(ctx)
		}
	}
}

func (e *Engine) processImports(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		records, ok := e.pendingImports.Pop()
		if !ok {
			e.mu.Unlock()
			return
		}
		session := e.session
		e.mu.Unlock()

		height, err := e.importer.Import(records)

		e.mu.Lock()
		if session != e.session {
			// the session was restarted while importing, the result is stale
			e.mu.Unlock()
			continue
		}
		if err != nil {
			e.log.Warn().Err(err).Uint64("height", height).Msg("could not import blocks, restarting sync")
			e.restart(height)
			e.mu.Unlock()
			continue
		}
		e.imported = height
		e.metrics.BlocksImported(len(records), height)
		e.mu.Unlock()
	}
}
