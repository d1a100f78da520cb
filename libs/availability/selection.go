package availability

import "sort"

// Selector turns pointer gestures over a slot grid into one chosen BookingSlot.
// ClassicSelector and DragSelector are the two calendar strategies over the same
// Generate output.
type Selector interface {
	// Begin starts a selection at the unit on day starting at at. It is a no-op
	// returning false when that unit is missing or unavailable.
	Begin(day Date, at Clock) bool
	// Extend moves the free end of an active selection toward the given unit.
	Extend(day Date, at Clock)
	// End finalizes the selection into one slot and clears it.
	End() (BookingSlot, bool)
	// Leave is called when the pointer leaves the grid; it finalizes at the last valid position.
	Leave() (BookingSlot, bool)
	Active() bool
}

type cellKey struct {
	day   Date
	start Clock
}

// Grid indexes slots by (date, start) in date/start order.
type Grid struct {
	slots []BookingSlot
	index map[cellKey]int
}

func NewGrid(slots []BookingSlot) *Grid {
	sorted := make([]BookingSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day.Before(sorted[j].Day)
		}
		return sorted[i].Start < sorted[j].Start
	})
	g := &Grid{slots: sorted, index: make(map[cellKey]int, len(sorted))}
	for i, s := range sorted {
		g.index[cellKey{s.Day, s.Start}] = i
	}
	return g
}

func (g *Grid) lookup(day Date, at Clock) (int, bool) {
	i, ok := g.index[cellKey{day, at}]
	return i, ok
}

// contiguous reports that cells a and b are neighbours on the same day with no gap
// and that b is available.
func (g *Grid) contiguous(a, b int) bool {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return g.slots[lo].Day == g.slots[hi].Day &&
		g.slots[lo].End == g.slots[hi].Start &&
		g.slots[b].Available
}

// reach walks from anchor toward target and returns the last cell reachable through
// contiguous available cells.
func (g *Grid) reach(anchor, target int) int {
	step := 1
	if target < anchor {
		step = -1
	}
	cur := anchor
	for cur != target {
		next := cur + step
		if !g.contiguous(cur, next) {
			break
		}
		cur = next
	}
	return cur
}

func (g *Grid) span(a, b int) BookingSlot {
	if a > b {
		a, b = b, a
	}
	first, last := g.slots[a], g.slots[b]
	return BookingSlot{
		Day:       first.Day,
		Start:     first.Start,
		End:       last.End,
		Available: true,
		TutorID:   first.TutorID,
	}
}

// ClassicSelector picks exactly one unit.
type ClassicSelector struct {
	grid   *Grid
	picked int
	active bool
}

func NewClassicSelector(g *Grid) *ClassicSelector {
	return &ClassicSelector{grid: g}
}

func (c *ClassicSelector) Begin(day Date, at Clock) bool {
	i, ok := c.grid.lookup(day, at)
	if !ok || !c.grid.slots[i].Available {
		return false
	}
	c.picked, c.active = i, true
	return true
}

func (c *ClassicSelector) Extend(Date, Clock) {}

func (c *ClassicSelector) End() (BookingSlot, bool) {
	if !c.active {
		return BookingSlot{}, false
	}
	c.active = false
	return c.grid.span(c.picked, c.picked), true
}

func (c *ClassicSelector) Leave() (BookingSlot, bool) { return c.End() }

func (c *ClassicSelector) Active() bool { return c.active }

// DragSelector selects a contiguous run of available units on one day.
type DragSelector struct {
	grid    *Grid
	anchor  int
	current int
	active  bool
}

func NewDragSelector(g *Grid) *DragSelector {
	return &DragSelector{grid: g}
}

func (d *DragSelector) Begin(day Date, at Clock) bool {
	i, ok := d.grid.lookup(day, at)
	if !ok || !d.grid.slots[i].Available {
		return false
	}
	d.anchor, d.current, d.active = i, i, true
	return true
}

// Extend grows or shrinks the run. Unknown cells leave it unchanged; a day boundary,
// a gap between ranges or an unavailable unit clamps it at the last valid cell.
func (d *DragSelector) Extend(day Date, at Clock) {
	if !d.active {
		return
	}
	target, ok := d.grid.lookup(day, at)
	if !ok {
		return
	}
	d.current = d.grid.reach(d.anchor, target)
}

func (d *DragSelector) End() (BookingSlot, bool) {
	if !d.active {
		return BookingSlot{}, false
	}
	d.active = false
	return d.grid.span(d.anchor, d.current), true
}

func (d *DragSelector) Leave() (BookingSlot, bool) { return d.End() }

func (d *DragSelector) Active() bool { return d.active }

var (
	_ Selector = (*ClassicSelector)(nil)
	_ Selector = (*DragSelector)(nil)
)
