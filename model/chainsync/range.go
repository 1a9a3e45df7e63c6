package chainsync

import (
	"fmt"
)

// Range is a half-open interval of block heights [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// NewRange returns the range covering count heights beginning at start.
func NewRange(start, count uint64) Range {
	return Range{Start: start, End: start + count}
}

// Len returns the number of heights in the range.
func (r Range) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// IsEmpty returns true if the range holds no heights.
func (r Range) IsEmpty() bool {
	return r.End <= r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}
