package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeRange is a half-open wall-clock interval [Start, End).
type TimeRange struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func (r TimeRange) overlaps(start, end Clock) bool {
	return start < r.End && r.Start < end
}

// WeeklyAvailability maps lowercase weekday names ("monday") to that day's ranges.
type WeeklyAvailability map[string][]TimeRange

var weekdayKeys = [...]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

func WeekdayKey(d time.Weekday) string {
	return weekdayKeys[d]
}

func isWeekdayKey(k string) bool {
	for _, w := range weekdayKeys {
		if w == k {
			return true
		}
	}
	return false
}

// Validate checks weekday keys and that every day's ranges are well formed and disjoint.
func (w WeeklyAvailability) Validate() error {
	for key, ranges := range w {
		if !isWeekdayKey(key) {
			return fmt.Errorf("unknown weekday %q", key)
		}
		sorted := sortedRanges(ranges)
		for i, r := range sorted {
			if r.Start < 0 || r.End > EndOfDay || r.Start >= r.End {
				return fmt.Errorf("%s: range %s-%s must satisfy start < end within the day", key, r.Start, r.End)
			}
			if i > 0 && sorted[i-1].End > r.Start {
				return fmt.Errorf("%s: range %s-%s overlaps %s-%s", key, r.Start, r.End, sorted[i-1].Start, sorted[i-1].End)
			}
		}
	}
	return nil
}

// Normalize lowercases keys, sorts ranges and drops empty days.
func (w WeeklyAvailability) Normalize() WeeklyAvailability {
	out := WeeklyAvailability{}
	for key, ranges := range w {
		if len(ranges) == 0 {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(key))
		out[k] = append(out[k], ranges...)
	}
	for k, ranges := range out {
		out[k] = sortedRanges(ranges)
	}
	return out
}

// IsEmpty reports that no weekday has a range, i.e. the tutor has not configured availability.
func (w WeeklyAvailability) IsEmpty() bool {
	for _, ranges := range w {
		if len(ranges) > 0 {
			return false
		}
	}
	return true
}

// Ranges returns the sorted ranges for weekday d.
func (w WeeklyAvailability) Ranges(d time.Weekday) []TimeRange {
	return sortedRanges(w[WeekdayKey(d)])
}

func sortedRanges(in []TimeRange) []TimeRange {
	out := make([]TimeRange, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}
