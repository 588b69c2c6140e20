package sampler

import (
	"fmt"
	"time"
)

// Timestamp is one sample point: a 0-based ordinal index and its absolute
// offset into the video (Index * interval).
type Timestamp struct {
	Index  int
	Offset time.Duration
}

// Schedule produces the ordered sequence of sample timestamps for a video.
// It is immutable and can be walked any number of times.
type Schedule struct {
	duration time.Duration
	interval time.Duration
}

// NewSchedule validates the sampling parameters. Samples start at offset 0,
// so even a video shorter than one interval yields a single sample.
func NewSchedule(duration, interval time.Duration) (*Schedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %v", interval)
	}
	if duration < 0 {
		return nil, fmt.Errorf("video duration cannot be negative, got %v", duration)
	}
	return &Schedule{duration: duration, interval: interval}, nil
}

// Count returns the total number of samples: floor(duration/interval) + 1.
func (s *Schedule) Count() int {
	return int(s.duration/s.interval) + 1
}

// At returns the i-th sample timestamp. Panics if i is out of range, as the
// coordinator only asks for indexes below Count().
func (s *Schedule) At(i int) Timestamp {
	if i < 0 || i >= s.Count() {
		panic(fmt.Sprintf("sample index %d out of range [0,%d)", i, s.Count()))
	}
	return Timestamp{Index: i, Offset: time.Duration(i) * s.interval}
}

func (s *Schedule) Interval() time.Duration {
	return s.interval
}
