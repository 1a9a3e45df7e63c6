package chainsync

import (
	"github.com/onflow/flow-rangesync/model/flow"
)

// BlockPayload is a block as decoded by the wire codec. Synchronization never
// looks inside it.
type BlockPayload interface{}

// BlockRecord is a downloaded block together with the peer that served it.
// Origin is nil for blocks which were not received from the network.
type BlockRecord struct {
	Payload BlockPayload
	Origin  *flow.Identifier
}

// NewBlockRecords tags each payload with the given origin.
func NewBlockRecords(blocks []BlockPayload, origin flow.Identifier) []BlockRecord {
	records := make([]BlockRecord, 0, len(blocks))
	for _, block := range blocks {
		origin := origin
		records = append(records, BlockRecord{
			Payload: block,
			Origin:  &origin,
		})
	}
	return records
}

// OriginID returns the origin of the record, or flow.ZeroID if it has none.
func (b BlockRecord) OriginID() flow.Identifier {
	if b.Origin == nil {
		return flow.ZeroID
	}
	return *b.Origin
}
