package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onflow/flow-rangesync/module"
)

type SyncEngineCollector struct {
	requestsSent     prometheus.Counter
	requestsFailed   prometheus.Counter
	requestsTimedOut prometheus.Counter
	responseDuration prometheus.Histogram
	blocksImported   prometheus.Counter
	localHeight      prometheus.Gauge
	activePeers      prometheus.Gauge
	importQueue      prometheus.Gauge
}

var _ module.SyncEngineMetrics = (*SyncEngineCollector)(nil)

func NewSyncEngineCollector(registerer prometheus.Registerer) *SyncEngineCollector {
	factory := promauto.With(registerer)

	sc := &SyncEngineCollector{
		requestsSent: factory.NewCounter(prometheus.CounterOpts{
			Name:      "range_requests_sent_total",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Help:      "the number of range requests sent to peers",
		}),
		requestsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name:      "range_requests_failed_total",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Help:      "the number of range requests which could not be sent",
		}),
		requestsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Name:      "range_requests_timed_out_total",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Help:      "the number of range requests without a timely response",
		}),
		responseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "range_response_seconds",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			Help:      "the time between sending a range request and receiving its response",
		}),
		blocksImported: factory.NewCounter(prometheus.CounterOpts{
			Name:      "blocks_imported_total",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Help:      "the number of blocks handed to the importer",
		}),
		localHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "local_height",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Help:      "the height of the latest imported block",
		}),
		activePeers: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "active_peers",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Help:      "the number of peers known to the sync engine",
		}),
		importQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "import_queue_length",
			Namespace: namespaceSync,
			Subsystem: subsystemEngine,
			Help:      "the number of drained block batches waiting for import",
		}),
	}

	return sc
}

func (sc *SyncEngineCollector) RequestSent() {
	sc.requestsSent.Inc()
}

func (sc *SyncEngineCollector) RequestFailed() {
	sc.requestsFailed.Inc()
}

func (sc *SyncEngineCollector) RequestTimedOut() {
	sc.requestsTimedOut.Inc()
}

func (sc *SyncEngineCollector) ResponseReceived(duration time.Duration) {
	sc.responseDuration.Observe(duration.Seconds())
}

func (sc *SyncEngineCollector) BlocksImported(count int, height uint64) {
	sc.blocksImported.Add(float64(count))
	sc.localHeight.Set(float64(height))
}

func (sc *SyncEngineCollector) ActivePeers(count int) {
	sc.activePeers.Set(float64(count))
}

func (sc *SyncEngineCollector) ImportQueueLength(length int) {
	sc.importQueue.Set(float64(length))
}
