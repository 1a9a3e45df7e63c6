package metrics

import (
	"time"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/module"
)

type NoopCollector struct{}

var _ module.RangeTrackerMetrics = (*NoopCollector)(nil)
var _ module.SyncEngineMetrics = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) RangeAllocated(ran chainsync.Range)      {}
func (nc *NoopCollector) RangeReleased(abandoned bool)            {}
func (nc *NoopCollector) BlocksInserted(count int)                {}
func (nc *NoopCollector) InsertRejected(reason string)            {}
func (nc *NoopCollector) BlocksDrained(count int)                 {}
func (nc *NoopCollector) TrackedRanges(downloading, complete int) {}
func (nc *NoopCollector) RequestSent()                            {}
func (nc *NoopCollector) RequestFailed()                          {}
func (nc *NoopCollector) RequestTimedOut()                        {}
func (nc *NoopCollector) ResponseReceived(duration time.Duration) {}
func (nc *NoopCollector) BlocksImported(count int, height uint64) {}
func (nc *NoopCollector) ActivePeers(count int)                   {}
func (nc *NoopCollector) ImportQueueLength(length int)             {}
