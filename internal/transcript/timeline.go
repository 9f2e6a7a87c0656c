package transcript

import (
	"fmt"
	"time"
)

// DefaultAssumedDuration is the call length assumed when interpolating sentence offsets.
const DefaultAssumedDuration = 30 * time.Minute

// Timeline spreads sentences evenly over an assumed total duration.
// Offsets are approximations, not measured timestamps.
type Timeline struct {
	totalSentences int
	durationMs     int64
}

// NewTimeline creates a Timeline for totalSentences sentences.
func NewTimeline(totalSentences int, duration time.Duration) Timeline {
	if duration <= 0 {
		duration = DefaultAssumedDuration
	}
	return Timeline{totalSentences: totalSentences, durationMs: duration.Milliseconds()}
}

// Span returns the interpolated start and end offsets, in milliseconds, of sentence index.
func (t Timeline) Span(index int) (start, end int64) {
	if t.totalSentences <= 0 {
		return 0, 0
	}
	n := int64(t.totalSentences)
	start = int64(index) * t.durationMs / n
	end = int64(index+1) * t.durationMs / n
	return start, end
}

// FormatTimestamp renders a millisecond offset as mm:ss. Minutes are not wrapped at 60.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
