package simulation

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/module"
	"github.com/onflow/flow-rangesync/module/util"
)

// Importer appends blocks to a local copy of the chain. It rejects blocks which
// are out of order or not part of the chain, reporting the height it reached.
type Importer struct {
	log      zerolog.Logger
	chain    *Chain
	progress util.LogProgressFunc

	mu      sync.Mutex
	height  uint64
	target  uint64
	reached chan struct{}
}

var _ module.BlockImporter = (*Importer)(nil)

// NewImporter creates an importer which signals once target is reached. Import
// progress is reported to the given function, or logged if it is nil.
func NewImporter(log zerolog.Logger, chain *Chain, target uint64, progress util.LogProgressFunc) *Importer {
	log = log.With().Str("component", "importer").Logger()
	if progress == nil {
		progress = util.LogProgress(log, util.DefaultLogProgressConfig("importing blocks", target))
	}
	i := &Importer{
		log:      log,
		chain:    chain,
		progress: progress,
		target:   target,
		reached:  make(chan struct{}),
	}
	if target == 0 {
		close(i.reached)
	}
	return i
}

func (i *Importer) Import(blocks []chainsync.BlockRecord) (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := i.height
	defer func() {
		i.progress(i.height - start)
		if i.height >= i.target && !util.CheckClosed(i.reached) {
			close(i.reached)
		}
	}()

	for _, block := range blocks {
		err := i.chain.Verify(i.height+1, block.Payload)
		if err != nil {
			origin := block.OriginID()
			i.log.Warn().Err(err).Hex("origin", origin[:]).Msg("rejected block")
			return i.height, fmt.Errorf("could not import block: %w", err)
		}
		i.height++
	}

	return i.height, nil
}

// Height returns the height of the last imported block.
func (i *Importer) Height() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.height
}

// Reached is closed once the target height was imported.
func (i *Importer) Reached() <-chan struct{} {
	return i.reached
}
