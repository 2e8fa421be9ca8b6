package generic

import "time"

// =============================================================================
// DATE WINDOW - The payroll period filter
// =============================================================================

// DateWindow is an inclusive range of calendar dates used to select
// weighments for payroll. Either bound may be nil, meaning unbounded on
// that side.
//
// Bounds are dates, records carry instants: Start admits everything from
// 00:00:00.000 of the start date, End admits everything up to 23:59:59.999
// of the end date, both in Location.
type DateWindow struct {
	Start    *TimePoint
	End      *TimePoint
	Location *time.Location
}

// NewDateWindow builds a window from optional YYYY-MM-DD strings. Empty
// strings leave the bound open.
func NewDateWindow(start, end string, loc *time.Location) (DateWindow, error) {
	w := DateWindow{Location: loc}
	if start != "" {
		tp, err := ParseDate(start)
		if err != nil {
			return DateWindow{}, ErrInvalidPeriod
		}
		w.Start = &tp
	}
	if end != "" {
		tp, err := ParseDate(end)
		if err != nil {
			return DateWindow{}, ErrInvalidPeriod
		}
		w.End = &tp
	}
	if w.Start != nil && w.End != nil && w.End.Before(*w.Start) {
		return DateWindow{}, ErrInvalidPeriod
	}
	return w, nil
}

// Contains returns true if t falls within the window.
func (w DateWindow) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(w.Start.StartIn(w.Location)) {
		return false
	}
	if w.End != nil && t.After(w.End.EndIn(w.Location)) {
		return false
	}
	return true
}

// IsUnbounded is true when neither side is set.
func (w DateWindow) IsUnbounded() bool { return w.Start == nil && w.End == nil }

// StartLabel and EndLabel render the bounds for run receipts and export
// file names; open bounds render as "all".
func (w DateWindow) StartLabel() string { return boundLabel(w.Start) }
func (w DateWindow) EndLabel() string   { return boundLabel(w.End) }

func boundLabel(tp *TimePoint) string {
	if tp == nil {
		return "all"
	}
	return tp.String()
}

// String returns a string representation of the window.
func (w DateWindow) String() string {
	return "[" + w.StartLabel() + ", " + w.EndLabel() + "]"
}

// MonthWindow is the calendar month containing t, in loc.
func MonthWindow(t time.Time, loc *time.Location) DateWindow {
	d := DateOf(t, loc)
	start := StartOfMonth(d.Year(), d.Month())
	end := EndOfMonth(d.Year(), d.Month())
	return DateWindow{Start: &start, End: &end, Location: loc}
}
