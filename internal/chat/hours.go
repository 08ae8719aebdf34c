package chat

import (
	"time"
)

// OperatingHours is a daily open window in a fixed time zone. A window whose
// close hour is before its open hour wraps past midnight. Equal hours mean
// open around the clock.
type OperatingHours struct {
	OpenHour  int
	CloseHour int
	Location  *time.Location
}

// IsOpen reports whether t falls inside the window.
func (h OperatingHours) IsOpen(t time.Time) bool {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	hour := t.In(loc).Hour()

	switch {
	case h.OpenHour == h.CloseHour:
		return true
	case h.OpenHour < h.CloseHour:
		return hour >= h.OpenHour && hour < h.CloseHour
	default:
		return hour >= h.OpenHour || hour < h.CloseHour
	}
}

func (e *Engine) withinHours(t time.Time) bool {
	return e.cfg.Hours == nil || e.cfg.Hours.IsOpen(t)
}
