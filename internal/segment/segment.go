// Package segment derives the playback regions of a task from its audio
// length. It is pure: no storage, no clock.
package segment

import (
	"fmt"
	"math"
)

// LeadIn is the pre-roll in milliseconds added before every region boundary
// so the listener hears a little context. The first region clamps it to 0.
const LeadIn int64 = 750

// Span is an inclusive [Start, End] millisecond interval.
type Span struct {
	Start int64
	End   int64
}

// TargetCount is ceil(length / regionLength).
func TargetCount(length, regionLength int64) (int, error) {
	if length <= 0 {
		return 0, fmt.Errorf("length must be positive (got %d)", length)
	}
	if regionLength <= 0 {
		return 0, fmt.Errorf("region length must be positive (got %d)", regionLength)
	}
	return int(math.Ceil(float64(length) / float64(regionLength))), nil
}

// Segment splits [0, length) into TargetCount regions of roughly equal size.
// Region n spans [max(0, n*size-LeadIn), (n+1)*size-1] where
// size = round(length/count); the last region always ends at length-1.
func Segment(length, regionLength int64) ([]Span, error) {
	count, err := TargetCount(length, regionLength)
	if err != nil {
		return nil, err
	}
	size := int64(math.Round(float64(length) / float64(count)))

	spans := make([]Span, count)
	for n := int64(0); n < int64(count); n++ {
		start := n*size - LeadIn
		if start < 0 {
			start = 0
		}
		end := (n+1)*size - 1
		if n == int64(count)-1 {
			end = length - 1
		}
		if start > end {
			start = end
		}
		spans[n] = Span{Start: start, End: end}
	}
	return spans, nil
}

// NeedsRegeneration reports whether the active region set must be replaced.
// Only the count is compared; boundaries of a matching set are trusted.
func NeedsRegeneration(activeCount int, length, regionLength int64) (bool, error) {
	count, err := TargetCount(length, regionLength)
	if err != nil {
		return false, err
	}
	return activeCount != count, nil
}
