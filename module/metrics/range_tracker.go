package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onflow/flow-rangesync/model/chainsync"
	"github.com/onflow/flow-rangesync/module"
)

type RangeTrackerCollector struct {
	rangesAllocated prometheus.Counter
	rangeSize       prometheus.Histogram
	rangesReleased  *prometheus.CounterVec
	blocksInserted  prometheus.Counter
	insertsRejected *prometheus.CounterVec
	blocksDrained   prometheus.Counter
	rangesTracked   *prometheus.GaugeVec
}

var _ module.RangeTrackerMetrics = (*RangeTrackerCollector)(nil)

func NewRangeTrackerCollector(registerer prometheus.Registerer) *RangeTrackerCollector {
	factory := promauto.With(registerer)

	rc := &RangeTrackerCollector{
		rangesAllocated: factory.NewCounter(prometheus.CounterOpts{
			Name:      "ranges_allocated_total",
			Namespace: namespaceSync,
			Subsystem: subsystemRangeTracker,
			Help:      "the number of ranges assigned to peers",
		}),
		rangeSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "allocated_range_size",
			Namespace: namespaceSync,
			Subsystem: subsystemRangeTracker,
			Buckets:   []float64{1, 8, 32, 64, 128, 256, 512},
			Help:      "the number of heights in allocated ranges",
		}),
		rangesReleased: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "ranges_released_total",
			Namespace: namespaceSync,
			Subsystem: subsystemRangeTracker,
			Help:      "the number of released peer assignments, by whether the range was abandoned",
		}, []string{LabelResult}),
		blocksInserted: factory.NewCounter(prometheus.CounterOpts{
			Name:      "blocks_inserted_total",
			Namespace: namespaceSync,
			Subsystem: subsystemRangeTracker,
			Help:      "the number of downloaded blocks accepted into completed ranges",
		}),
		insertsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "inserts_rejected_total",
			Namespace: namespaceSync,
			Subsystem: subsystemRangeTracker,
			Help:      "the number of block batches which were not inserted",
		}, []string{LabelReason}),
		blocksDrained: factory.NewCounter(prometheus.CounterOpts{
			Name:      "blocks_drained_total",
			Namespace: namespaceSync,
			Subsystem: subsystemRangeTracker,
			Help:      "the number of blocks handed over for import",
		}),
		rangesTracked: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:      "ranges",
			Namespace: namespaceSync,
			Subsystem: subsystemRangeTracker,
			Help:      "the number of tracked ranges by state",
		}, []string{LabelState}),
	}

	return rc
}

func (rc *RangeTrackerCollector) RangeAllocated(ran chainsync.Range) {
	rc.rangesAllocated.Inc()
	rc.rangeSize.Observe(float64(ran.Len()))
}

func (rc *RangeTrackerCollector) RangeReleased(abandoned bool) {
	result := ResultShared
	if abandoned {
		result = ResultAbandoned
	}
	rc.rangesReleased.WithLabelValues(result).Inc()
}

func (rc *RangeTrackerCollector) BlocksInserted(count int) {
	rc.blocksInserted.Add(float64(count))
}

func (rc *RangeTrackerCollector) InsertRejected(reason string) {
	rc.insertsRejected.WithLabelValues(reason).Inc()
}

func (rc *RangeTrackerCollector) BlocksDrained(count int) {
	rc.blocksDrained.Add(float64(count))
}

func (rc *RangeTrackerCollector) TrackedRanges(downloading, complete int) {
	rc.rangesTracked.WithLabelValues(StateDownloading).Set(float64(downloading))
	rc.rangesTracked.WithLabelValues(StateComplete).Set(float64(complete))
}
