package metrics

// Prometheus metric namespaces
const (
	namespaceSync = "sync"
)

// Sync subsystems
const (
	subsystemRangeTracker = "range_tracker"
	subsystemEngine       = "engine"
)
