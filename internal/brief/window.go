package brief

import (
	"time"

	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
)

// Window is the span of time a brief covers.
type Window struct {
	Start time.Time
	End   time.Time
	// Display is a short label such as "Nov 01–07" or "Oct 31–Nov 07".
	Display string
}

// CoverageWindow returns the window ending at now and starting days earlier,
// with both ends expressed in loc.
func CoverageWindow(now time.Time, loc *time.Location, days int) Window {
	end := now.In(loc)
	start := end.AddDate(0, 0, -days)

	display := start.Format("Jan 02") + "–"
	if start.Month() == end.Month() && start.Year() == end.Year() {
		display += end.Format("02")
	} else {
		display += end.Format("Jan 02")
	}

	return Window{Start: start, End: end, Display: display}
}

// StartMillis returns the start bound in Unix milliseconds.
func (w Window) StartMillis() int64 { return w.Start.UnixMilli() }

// EndMillis returns the end bound in Unix milliseconds.
func (w Window) EndMillis() int64 { return w.End.UnixMilli() }

// Contains reports whether ts (Unix milliseconds) falls inside the window.
// Both bounds are inclusive.
func (w Window) Contains(ts int64) bool {
	return ts >= w.StartMillis() && ts <= w.EndMillis()
}

// FilterToWindow keeps the items whose internal date falls inside w,
// preserving order.
func FilterToWindow(items []*gmail.Newsletter, w Window) []*gmail.Newsletter {
	out := make([]*gmail.Newsletter, 0, len(items))
	for _, it := range items {
		if w.Contains(it.InternalTS) {
			out = append(out, it)
		}
	}
	return out
}
