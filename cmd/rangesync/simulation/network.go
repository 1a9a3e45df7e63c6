package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/exp/maps"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/model/flow"
	"github.com/onflow/flow-rangesync/module"
)

// ResponseHandler receives the blocks peers send back.
type ResponseHandler interface {
	OnBlockResponse(peer flow.Identifier, start uint64, blocks []chainsync.BlockPayload) error
}

// Peer is a simulated peer which has the chain up to its best height.
type Peer struct {
	ID   flow.Identifier
	Best uint64
}

type NetworkConfig struct {
	Peers    int           // number of simulated peers
	Latency  time.Duration // upper bound of the random response latency
	FailRate float64       // probability in [0, 1] that a request fails or goes unanswered
	Seed     int64
}

// Stats counts what happened to the requests sent through the network.
type Stats struct {
	Requests  uint64
	Failed    uint64
	Dropped   uint64
	Responses uint64
	Stale     uint64

	LatencyMedian time.Duration
	LatencyP95    time.Duration
}

// Network is an in-memory stand-in for the peer-to-peer layer. Requests are
// answered asynchronously after a random latency. Some requests fail right
// away, and some are silently dropped so that they time out.
type Network struct {
	log     zerolog.Logger
	chain   *Chain
	config  NetworkConfig
	handler ResponseHandler
	peers   map[flow.Identifier]*Peer
	wg      sync.WaitGroup

	randLock sync.Mutex
	rand     *rand.Rand

	requests  *atomic.Uint64
	failed    *atomic.Uint64
	dropped   *atomic.Uint64
	responses *atomic.Uint64
	stale     *atomic.Uint64

	latencyLock sync.Mutex
	latencies   stats.Float64Data // seconds, one per delivered response
}

var _ module.RangeRequester = (*Network)(nil)

var ErrUnknownPeer = errors.New("unknown peer")

// NewNetwork creates the configured number of peers. Their best heights are
// spread over the upper half of the chain, and the first peer always has the
// full chain.
func NewNetwork(log zerolog.Logger, chain *Chain, config NetworkConfig) (*Network, error) {
	if config.Peers < 1 {
		return nil, fmt.Errorf("at least one peer is required, got %d", config.Peers)
	}
	if config.FailRate < 0 || config.FailRate >= 1 {
		return nil, fmt.Errorf("fail rate must be in [0, 1), got %v", config.FailRate)
	}

	n := &Network{
		log:       log.With().Str("component", "network").Logger(),
		chain:     chain,
		config:    config,
		peers:     make(map[flow.Identifier]*Peer, config.Peers),
		rand:      rand.New(rand.NewSource(config.Seed)),
		requests:  atomic.NewUint64(0),
		failed:    atomic.NewUint64(0),
		dropped:   atomic.NewUint64(0),
		responses: atomic.NewUint64(0),
		stale:     atomic.NewUint64(0),
	}

	height := chain.Height()
	for i := 0; i < config.Peers; i++ {
		var id flow.Identifier
		_, _ = n.rand.Read(id[:])

		best := height
		if i > 0 {
			best = height/2 + uint64(n.rand.Int63n(int64(height-height/2)+1))
		}
		n.peers[id] = &Peer{ID: id, Best: best}
	}

	return n, nil
}

// Attach sets the handler responses are delivered to. It must be called
// before the first request is sent.
func (n *Network) Attach(handler ResponseHandler) {
	n.handler = handler
}

// Peers returns all simulated peers.
func (n *Network) Peers() []*Peer {
	return maps.Values(n.peers)
}

func (n *Network) RequestRange(ctx context.Context, peerID flow.Identifier, ran chainsync.Range) error {
	peer, ok := n.peers[peerID]
	if !ok {
		return fmt.Errorf("could not request range %v from %v: %w", ran, peerID, ErrUnknownPeer)
	}
	n.requests.Inc()

	roll, latency := n.roll()
	switch {
	case roll < n.config.FailRate/2:
		n.failed.Inc()
		return fmt.Errorf("could not reach peer %v", peerID)
	case roll < n.config.FailRate:
		n.dropped.Inc()
		n.log.Trace().Hex("peer", peerID[:]).Str("range", ran.String()).Msg("dropped request")
		return nil
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		select {
		case <-ctx.Done():
			return
		case <-time.After(latency):
		}

		blocks := n.chain.Payloads(ran, peer.Best)
		n.responses.Inc()
		n.observeLatency(latency)
		err := n.handler.OnBlockResponse(peerID, ran.Start, blocks)
		if err != nil {
			n.stale.Inc()
			n.log.Debug().Err(err).Hex("peer", peerID[:]).Msg("response was not accepted")
		}
	}()

	return nil
}

func (n *Network) roll() (float64, time.Duration) {
	n.randLock.Lock()
	defer n.randLock.Unlock()

	roll := n.rand.Float64()
	var latency time.Duration
	if n.config.Latency > 0 {
		latency = time.Duration(n.rand.Int63n(int64(n.config.Latency)))
	}
	return roll, latency
}

// Wait blocks until all pending responses were delivered or abandoned.
func (n *Network) Wait() {
	n.wg.Wait()
}

func (n *Network) observeLatency(latency time.Duration) {
	n.latencyLock.Lock()
	defer n.latencyLock.Unlock()
	n.latencies = append(n.latencies, latency.Seconds())
}

func (n *Network) Stats() Stats {
	s := Stats{
		Requests:  n.requests.Load(),
		Failed:    n.failed.Load(),
		Dropped:   n.dropped.Load(),
		Responses: n.responses.Load(),
		Stale:     n.stale.Load(),
	}

	n.latencyLock.Lock()
	defer n.latencyLock.Unlock()
	// both only fail for empty input, leaving the zero value
	if median, err := n.latencies.Median(); err == nil {
		s.LatencyMedian = time.Duration(median * float64(time.Second))
	}
	if p95, err := n.latencies.Percentile(95); err == nil {
		s.LatencyP95 = time.Duration(p95 * float64(time.Second))
	}
	return s
}
