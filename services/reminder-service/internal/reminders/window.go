// Package reminders runs the windowed reminder scans and the on-demand send.
package reminders

import (
	"fmt"
	"time"
)

// Window selects confirmed appointments starting in [now+From, now+To] and is
// scanned every Every.
type Window struct {
	Label string
	Every time.Duration
	From  time.Duration
	To    time.Duration
}

func DayBefore() Window {
	return Window{Label: "24h", Every: time.Hour, From: 23 * time.Hour, To: 24 * time.Hour}
}

func HourBefore() Window {
	return Window{Label: "1h", Every: 10 * time.Minute, From: 50 * time.Minute, To: time.Hour}
}

// Validate rejects windows narrower than their scan interval, since an
// appointment could then fall between two scans and never be reminded.
func (w Window) Validate() error {
	if w.Label == "" {
		return fmt.Errorf("reminder window: label is required")
	}
	if w.Every <= 0 {
		return fmt.Errorf("reminder window %s: scan interval must be positive", w.Label)
	}
	if w.From < 0 || w.From >= w.To {
		return fmt.Errorf("reminder window %s: from (%s) must be before to (%s)", w.Label, w.From, w.To)
	}
	if w.To-w.From < w.Every {
		return fmt.Errorf("reminder window %s: width %s is shorter than scan interval %s", w.Label, w.To-w.From, w.Every)
	}
	return nil
}

// Bounds returns the absolute scan range for a scan started at now.
func (w Window) Bounds(now time.Time) (time.Time, time.Time) {
	return now.Add(w.From), now.Add(w.To)
}

// nextMidnight returns the first midnight in loc strictly after now.
func nextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
