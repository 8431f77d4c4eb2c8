// Package calendar provides working-day, shift-window, and 15-minute
// rounding arithmetic shared by the resource ledger and scheduling engine.
package calendar

import (
	"fmt"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/model"
)

// IsWorkingDay reports whether date is a working day for product: false on
// Saturday/Sunday or if the date appears in the product's holiday set, true
// otherwise (including when product is nil, matching the source's
// "absent/unknown product is always working" default).
func IsWorkingDay(date time.Time, product *model.Product) bool {
	wd := date.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if product == nil {
		return true
	}
	key := date.Format("2006-01-02")
	return !product.Holidays[key]
}

// WorkingDaysCount returns the number of working days in the inclusive
// calendar-day range [start, end], per product's holiday calendar (nil
// treats every weekday as working). Used for makespan, which is measured
// in working days rather than raw elapsed time.
func WorkingDaysCount(start, end time.Time, product *model.Product) int {
	if end.Before(start) {
		return 0
	}
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	count := 0
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		if IsWorkingDay(d, product) {
			count++
		}
	}
	return count
}

// Window is a half-open working interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// ShiftBounds computes the half-open window for shift on the given
// calendar date, given the team's declared HH:MM start/end. 3rd shift
// crosses midnight: [date 23:00, date+1 06:00).
//
// current is the time the caller is searching from; when current falls in
// [00:00, 06:00) on date and the shift is 3rd, the window returned is the
// tail end of the *previous* day's 3rd shift, matching
// get_next_working_time_with_capacity's special case for times just after
// midnight.
func ShiftBounds(date time.Time, shift string, win model.ShiftWindow, current time.Time) (Window, error) {
	startH, startM, err := parseHHMM(win.Start)
	if err != nil {
		return Window{}, err
	}
	endH, endM, err := parseHHMM(win.End)
	if err != nil {
		return Window{}, err
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	if shift == "3rd" {
		start := time.Date(day.Year(), day.Month(), day.Day(), 23, 0, 0, 0, day.Location())
		end := time.Date(day.Year(), day.Month(), day.Day(), 6, 0, 0, 0, day.Location()).AddDate(0, 0, 1)
		if sameDay(date, current) && current.Hour() < 6 {
			start = start.AddDate(0, 0, -1)
			end = end.AddDate(0, 0, -1)
		}
		return Window{Start: start, End: end}, nil
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), startH, startM, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), endH, endM, 0, 0, day.Location())
	return Window{Start: start, End: end}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func parseHHMM(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("calendar: invalid shift time %q: %w", s, err)
	}
	return h, m, nil
}

// NextSlot15Min rounds t up to the next 15-minute mark. A time already on a
// 15-minute mark is returned unchanged.
func NextSlot15Min(t time.Time) time.Time {
	m := t.Minute()
	if m%15 == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	rounded := ((m / 15) + 1) * 15
	base := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	if rounded >= 60 {
		return base.Add(time.Hour)
	}
	return base.Add(time.Duration(rounded) * time.Minute)
}
