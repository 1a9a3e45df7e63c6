package metrics

const (
	LabelState  = "state"
	LabelReason = "reason"
	LabelResult = "result"
)

const (
	StateDownloading = "downloading"
	StateComplete    = "complete"
)

const (
	ResultAbandoned = "abandoned"
	ResultShared    = "shared"
)
