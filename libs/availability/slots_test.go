package availability

import (
	"reflect"
	"testing"
	"time"
)

// 2026-03-02 is a Monday.
var monday = Date{Year: 2026, Month: time.March, Day: 2}

func rng(start, end string) TimeRange {
	return TimeRange{Start: MustClock(start), End: MustClock(end)}
}

func TestGenerate_MondayScenario(t *testing.T) {
	avail := WeeklyAvailability{"monday": {rng("09:00", "12:00")}}
	booked := []BookedSession{{Day: monday, Start: MustClock("10:00"), End: MustClock("10:30")}}

	slots := Generate(avail, booked, monday, 7, Options{Granularity: 30 * time.Minute, TutorID: "tutor-1"})
	if len(slots) != 6 {
		t.Fatalf("expected 6 units, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Day != monday {
			t.Fatalf("unexpected day %s", s.Day)
		}
		booked := s.Start == MustClock("10:00")
		if s.Available == booked {
			t.Fatalf("unit %s-%s available=%v", s.Start, s.End, s.Available)
		}
		if s.TutorID != "tutor-1" {
			t.Fatalf("expected tutor id on unit, got %q", s.TutorID)
		}
	}

	free := Bookable(slots)
	if len(free) != 5 {
		t.Fatalf("expected 5 bookable units, got %d", len(free))
	}
	for _, s := range free {
		if s.Start == MustClock("10:00") {
			t.Fatal("booked unit must be excluded from bookable units")
		}
	}
}

func TestGenerate_EmptyAvailability(t *testing.T) {
	for _, avail := range []WeeklyAvailability{nil, {}, {"monday": nil, "friday": {}}} {
		if HasAvailability(avail) {
			t.Fatalf("expected no availability for %v", avail)
		}
		if got := Generate(avail, nil, monday, 28, Options{}); len(got) != 0 {
			t.Fatalf("expected zero units, got %d", len(got))
		}
	}
}

func TestGenerate_PartialOverlapMarksUnavailable(t *testing.T) {
	avail := WeeklyAvailability{"monday": {rng("09:00", "11:00")}}
	booked := []BookedSession{{Day: monday, Start: MustClock("09:45"), End: MustClock("10:15")}}

	slots := Generate(avail, booked, monday, 1, Options{Granularity: time.Hour})
	if len(slots) != 2 {
		t.Fatalf("expected 2 units, got %d", len(slots))
	}
	if slots[0].Available || slots[1].Available {
		t.Fatalf("both hour units overlap the booking: %+v", slots)
	}
}

func TestGenerate_DropsTrailingRemainder(t *testing.T) {
	avail := WeeklyAvailability{"monday": {rng("09:00", "10:45")}}
	slots := Generate(avail, nil, monday, 1, Options{Granularity: 30 * time.Minute})
	if len(slots) != 3 {
		t.Fatalf("expected 3 units, got %d", len(slots))
	}
	if last := slots[len(slots)-1]; last.End != MustClock("10:30") {
		t.Fatalf("expected last unit to end at 10:30, got %s", last.End)
	}
}

func TestGenerate_Properties(t *testing.T) {
	avail := WeeklyAvailability{
		"monday":    {rng("13:00", "15:00"), rng("08:00", "10:00")},
		"wednesday": {rng("18:00", "24:00")},
		"saturday":  {rng("00:00", "01:30")},
	}
	booked := []BookedSession{
		{Day: monday, Start: MustClock("08:15"), End: MustClock("08:45")},
		{Day: monday.AddDays(2), Start: MustClock("23:00"), End: EndOfDay},
		{Day: monday.AddDays(5), Start: 0, End: MustClock("00:30")},
		{Day: monday.AddDays(7), Start: MustClock("14:00"), End: MustClock("14:30")},
	}
	gran := 30 * time.Minute

	slots := Generate(avail, booked, monday, 14, Options{Granularity: gran})
	if len(slots) == 0 {
		t.Fatal("expected units")
	}
	for i, s := range slots {
		if s.Duration() != gran {
			t.Fatalf("unit %d has duration %s", i, s.Duration())
		}
		if s.End > EndOfDay {
			t.Fatalf("unit %d spans midnight", i)
		}
		if i > 0 {
			prev := slots[i-1]
			if s.Day.Before(prev.Day) || (s.Day == prev.Day && s.Start <= prev.Start) {
				t.Fatalf("units out of order at %d: %+v after %+v", i, s, prev)
			}
		}
		if !s.Available {
			continue
		}
		for _, b := range booked {
			if b.Day == s.Day && s.Start < b.End && b.Start < s.End {
				t.Fatalf("available unit %+v overlaps booking %+v", s, b)
			}
		}
	}

	again := Generate(avail, booked, monday, 14, Options{Granularity: gran})
	if !reflect.DeepEqual(slots, again) {
		t.Fatal("Generate is not deterministic")
	}
}

func TestMarkPast(t *testing.T) {
	loc := time.UTC
	avail := WeeklyAvailability{"monday": {rng("09:00", "10:00")}}
	slots := Generate(avail, nil, monday, 1, Options{Granularity: 30 * time.Minute})

	now := monday.At(MustClock("09:10"), loc)
	marked := MarkPast(slots, now, loc)
	if marked[0].Available || !marked[1].Available {
		t.Fatalf("unexpected availability after MarkPast: %+v", marked)
	}
	if !slots[0].Available {
		t.Fatal("MarkPast must not mutate its input")
	}
}

func TestCovers(t *testing.T) {
	avail := WeeklyAvailability{"monday": {rng("09:00", "11:00"), rng("11:00", "12:00")}}
	booked := []BookedSession{{Day: monday, Start: MustClock("11:30"), End: MustClock("12:00")}}
	slots := Generate(avail, booked, monday, 1, Options{Granularity: 30 * time.Minute})

	cases := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"single unit", "09:00", "09:30", true},
		{"run across ranges", "10:00", "11:30", true},
		{"hits booked unit", "11:00", "12:00", false},
		{"misaligned", "09:15", "09:45", false},
		{"outside", "07:00", "08:00", false},
	}
	for _, tc := range cases {
		if got := Covers(slots, monday, MustClock(tc.start), MustClock(tc.end)); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSplitBooked(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC) // 23:00 local
	end := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)   // 01:00 local next day

	got := SplitBooked(start, end, loc)
	want := []BookedSession{
		{Day: monday, Start: MustClock("23:00"), End: EndOfDay},
		{Day: monday.AddDays(1), Start: 0, End: MustClock("01:00")},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestWeeklyValidate(t *testing.T) {
	ok := WeeklyAvailability{"Monday ": {rng("13:00", "15:00"), rng("09:00", "12:00")}}.Normalize()
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Ranges(time.Monday)[0].Start != MustClock("09:00") {
		t.Fatal("expected ranges sorted by start")
	}

	bad := []WeeklyAvailability{
		{"funday": {rng("09:00", "10:00")}},
		{"monday": {rng("10:00", "09:00")}},
		{"monday": {rng("09:00", "11:00"), rng("10:30", "12:00")}},
	}
	for _, w := range bad {
		if err := w.Validate(); err == nil {
			t.Fatalf("expected validation error for %v", w)
		}
	}
}

func TestClockAndDateText(t *testing.T) {
	for _, s := range []string{"9:5", "25:00", "24:30", "ab:cd", "12:60"} {
		if _, err := ParseClock(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
	if c := MustClock("24:00"); c != EndOfDay || c.String() != "24:00" {
		t.Fatalf("unexpected end of day clock %v", c)
	}
	if got := WeekStart(Date{Year: 2026, Month: time.March, Day: 8}); got != monday {
		t.Fatalf("expected Sunday to map to previous Monday, got %s", got)
	}
	if got := monday.At(EndOfDay, time.UTC); !got.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end-of-day instant %s", got)
	}
}
