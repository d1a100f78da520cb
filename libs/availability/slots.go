package availability

import (
	"sort"
	"time"
)

const (
	DefaultGranularity = 30 * time.Minute
	DefaultHorizonDays = 28
)

// BookingSlot is one concrete bookable unit on one date. It is a projection, never stored.
type BookingSlot struct {
	Day       Date   `json:"day"`
	Start     Clock  `json:"start"`
	End       Clock  `json:"end"`
	Available bool   `json:"available"`
	TutorID   string `json:"tutor_id,omitempty"`
}

// Duration is the wall-clock length of the slot.
func (s BookingSlot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

// BookedSession is an already reserved interval on one date. End may be EndOfDay.
type BookedSession struct {
	Day   Date
	Start Clock
	End   Clock
}

type Options struct {
	Granularity time.Duration
	TutorID     string
}

// Generate expands weekly availability into concrete units for the dates
// [start, start+horizonDays).
//
// Each range is cut into Granularity-sized units that lie entirely inside it; a shorter
// trailing remainder is dropped. A unit that overlaps any booked session on the same date,
// even partially, is returned with Available=false. The result is ordered by date and then
// start time and depends only on the arguments.
func Generate(avail WeeklyAvailability, booked []BookedSession, start Date, horizonDays int, opts Options) []BookingSlot {
	step := Clock(opts.Granularity / time.Minute)
	if step <= 0 {
		step = Clock(DefaultGranularity / time.Minute)
	}
	if horizonDays <= 0 || avail.IsEmpty() {
		return nil
	}

	busy := map[Date][]BookedSession{}
	for _, b := range booked {
		if b.End > b.Start {
			busy[b.Day] = append(busy[b.Day], b)
		}
	}

	var slots []BookingSlot
	for i := 0; i < horizonDays; i++ {
		day := start.AddDays(i)
		var units []BookingSlot
		for _, r := range avail.Ranges(day.Weekday()) {
			for s := r.Start; s+step <= r.End; s += step {
				units = append(units, BookingSlot{
					Day:       day,
					Start:     s,
					End:       s + step,
					Available: !overlapsAny(s, s+step, busy[day]),
					TutorID:   opts.TutorID,
				})
			}
		}
		sort.SliceStable(units, func(a, b int) bool { return units[a].Start < units[b].Start })
		slots = append(slots, units...)
	}
	return slots
}

func overlapsAny(start, end Clock, booked []BookedSession) bool {
	for _, b := range booked {
		// Half-open: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start < b.End && b.Start < end {
			return true
		}
	}
	return false
}

// HasAvailability distinguishes "tutor never configured availability" from
// "nothing free in this window".
func HasAvailability(avail WeeklyAvailability) bool {
	return !avail.IsEmpty()
}

// Bookable keeps only available units.
func Bookable(slots []BookingSlot) []BookingSlot {
	out := make([]BookingSlot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// MarkPast returns a copy of slots with every unit starting before now marked unavailable.
func MarkPast(slots []BookingSlot, now time.Time, loc *time.Location) []BookingSlot {
	out := make([]BookingSlot, len(slots))
	copy(out, slots)
	for i := range out {
		if out[i].Day.At(out[i].Start, loc).Before(now) {
			out[i].Available = false
		}
	}
	return out
}

// Covers reports whether [start,end) on day is tiled exactly by contiguous available units.
func Covers(slots []BookingSlot, day Date, start, end Clock) bool {
	if start >= end {
		return false
	}
	next := start
	for _, s := range slots {
		if s.Day != day || s.Start < next {
			continue
		}
		if s.Start > next || !s.Available {
			return false
		}
		next = s.End
		if next == end {
			return true
		}
		if next > end {
			return false
		}
	}
	return false
}

// SplitBooked converts a stored session into per-date wall-clock intervals in loc,
// splitting at local midnight.
func SplitBooked(start, end time.Time, loc *time.Location) []BookedSession {
	start, end = start.In(loc), end.In(loc)
	if !end.After(start) {
		return nil
	}
	var out []BookedSession
	for day := DateOf(start); ; day = day.AddDays(1) {
		dayStart := day.At(0, loc)
		nextStart := day.AddDays(1).At(0, loc)
		segStart, segEnd := start, end
		if segStart.Before(dayStart) {
			segStart = dayStart
		}
		if segEnd.After(nextStart) {
			segEnd = nextStart
		}
		if segEnd.After(segStart) {
			b := BookedSession{Day: day, Start: ClockOf(segStart), End: ClockOf(segEnd)}
			if !segEnd.Before(nextStart) {
				b.End = EndOfDay
			}
			out = append(out, b)
		}
		if !end.After(nextStart) {
			return out
		}
	}
}
