package availability

import (
	"testing"
	"time"
)

func dragGrid() *Grid {
	avail := WeeklyAvailability{
		"monday":  {rng("09:00", "12:00"), rng("13:00", "14:00")},
		"tuesday": {rng("09:00", "10:00")},
	}
	booked := []BookedSession{{Day: monday, Start: MustClock("11:00"), End: MustClock("11:30")}}
	return NewGrid(Generate(avail, booked, monday, 2, Options{Granularity: 30 * time.Minute, TutorID: "tutor-1"}))
}

func TestDragSelector_ContiguousRun(t *testing.T) {
	d := NewDragSelector(dragGrid())
	if !d.Begin(monday, MustClock("09:00")) {
		t.Fatal("expected begin on available unit")
	}
	d.Extend(monday, MustClock("10:00"))
	slot, ok := d.End()
	if !ok {
		t.Fatal("expected a finalized slot")
	}
	if slot.Start != MustClock("09:00") || slot.End != MustClock("10:30") || slot.TutorID != "tutor-1" {
		t.Fatalf("unexpected slot %+v", slot)
	}
	if d.Active() {
		t.Fatal("End must clear drag state")
	}
}

func TestDragSelector_ClampsAtUnavailable(t *testing.T) {
	d := NewDragSelector(dragGrid())
	d.Begin(monday, MustClock("10:00"))
	d.Extend(monday, MustClock("11:30"))
	slot, _ := d.End()
	if slot.Start != MustClock("10:00") || slot.End != MustClock("11:00") {
		t.Fatalf("expected clamp before booked 11:00 unit, got %s-%s", slot.Start, slot.End)
	}
}

func TestDragSelector_ClampsAtGapAndDayBoundary(t *testing.T) {
	d := NewDragSelector(dragGrid())
	d.Begin(monday, MustClock("13:00"))
	d.Extend(monday.AddDays(1), MustClock("09:30"))
	slot, _ := d.End()
	if slot.Day != monday || slot.Start != MustClock("13:00") || slot.End != MustClock("14:00") {
		t.Fatalf("expected run clamped to Monday 13:00-14:00, got %s %s-%s", slot.Day, slot.Start, slot.End)
	}

	d.Begin(monday, MustClock("13:00"))
	d.Extend(monday, MustClock("10:30"))
	slot, _ = d.End()
	if slot.Start != MustClock("13:00") || slot.End != MustClock("13:30") {
		t.Fatalf("expected gap at 12:00-13:00 to stop upward drag, got %s-%s", slot.Start, slot.End)
	}
}

func TestDragSelector_ContractsAndReverses(t *testing.T) {
	d := NewDragSelector(dragGrid())
	d.Begin(monday, MustClock("10:00"))
	d.Extend(monday, MustClock("10:30"))
	d.Extend(monday, MustClock("09:00"))
	slot, _ := d.End()
	if slot.Start != MustClock("09:00") || slot.End != MustClock("10:30") {
		t.Fatalf("expected reversed run 09:00-10:30, got %s-%s", slot.Start, slot.End)
	}
}

func TestDragSelector_BeginOnUnavailableIsNoop(t *testing.T) {
	d := NewDragSelector(dragGrid())
	if d.Begin(monday, MustClock("11:00")) {
		t.Fatal("begin on booked unit must fail")
	}
	if d.Begin(monday, MustClock("07:00")) {
		t.Fatal("begin outside the grid must fail")
	}
	d.Extend(monday, MustClock("09:00"))
	if _, ok := d.End(); ok {
		t.Fatal("no selection expected")
	}
}

func TestDragSelector_LeaveFinalizesLastValid(t *testing.T) {
	d := NewDragSelector(dragGrid())
	d.Begin(monday, MustClock("09:00"))
	d.Extend(monday, MustClock("09:30"))
	d.Extend(monday, MustClock("06:00")) // off grid: keeps last valid cell
	slot, ok := d.Leave()
	if !ok || slot.Start != MustClock("09:00") || slot.End != MustClock("10:00") {
		t.Fatalf("expected 09:00-10:00 on leave, got %+v (ok=%v)", slot, ok)
	}
}

func TestClassicSelector(t *testing.T) {
	var s Selector = NewClassicSelector(dragGrid())
	if s.Begin(monday, MustClock("11:00")) {
		t.Fatal("booked unit must not be selectable")
	}
	if !s.Begin(monday, MustClock("09:30")) {
		t.Fatal("expected selection")
	}
	s.Extend(monday, MustClock("11:30"))
	slot, ok := s.End()
	if !ok || slot.Start != MustClock("09:30") || slot.End != MustClock("10:00") {
		t.Fatalf("classic selection must stay a single unit, got %+v", slot)
	}
}
