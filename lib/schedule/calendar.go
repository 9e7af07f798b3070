package schedule

import (
	"fmt"
	"time"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
)

// Dispatch hours in the home zone.
const (
	MorningHour   = 7
	AfternoonHour = 15
)

// Calendar does all timezone conversion and business-day arithmetic for the
// dispatch pipeline. It holds no state beyond the two zone handles.
type Calendar struct {
	home    *time.Location
	display *time.Location
}

func NewCalendar(cfg *config.Config) *Calendar {
	return NewCalendarIn(cfg.Home(), cfg.Display())
}

func NewCalendarIn(home, display *time.Location) *Calendar {
	return &Calendar{home: home, display: display}
}

// NextDispatch is the next wall-clock moment a report goes out, rendered in
// both zones. The relative-day labels are derived independently per zone, so
// they can legitimately disagree by a day across the boundary.
type NextDispatch struct {
	Home         time.Time
	Display      time.Time
	HomeLabel    string
	DisplayLabel string
}

// NextDispatch resolves the next dispatch moment for a schedule, relative to
// now. Weekends are skipped: a target landing on Saturday or Sunday advances
// to the following Monday.
func (c *Calendar) NextDispatch(now time.Time, sched models.Schedule) NextDispatch {
	local := now.In(c.home)
	hour := targetHour(local.Hour(), sched)

	date := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, c.home)
	if local.Hour() >= hour {
		date = date.AddDate(0, 0, 1)
	}
	for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		date = date.AddDate(0, 0, 1)
	}

	display := date.In(c.display)
	return NextDispatch{
		Home:         date,
		Display:      display,
		HomeLabel:    relativeLabel(local, date),
		DisplayLabel: relativeLabel(now.In(c.display), display),
	}
}

// String renders both zones with their relative labels, display zone first,
// e.g. "Yesterday at 23:00 IST / Tomorrow at 07:00 CST".
func (d NextDispatch) String() string {
	return fmt.Sprintf("%s at %s / %s at %s",
		d.DisplayLabel, d.Display.Format("15:04 MST"),
		d.HomeLabel, d.Home.Format("15:04 MST"),
	)
}

// ShiftAllowed is the single-tenant hour gate: MORNING runs only before noon
// in the home zone, AFTERNOON only from noon on, BOTH always. Manual
// triggers bypass the gate entirely.
func (c *Calendar) ShiftAllowed(now time.Time, sched models.Schedule, manual bool) bool {
	if manual || sched == models.ScheduleBoth {
		return true
	}
	hour := now.In(c.home).Hour()
	switch sched {
	case models.ScheduleMorning:
		return hour < 12
	case models.ScheduleAfternoon:
		return hour >= 12
	default:
		return false
	}
}

// CurrentShift buckets the present moment into a half-day shift.
func (c *Calendar) CurrentShift(now time.Time) models.Shift {
	if now.In(c.home).Hour() < 12 {
		return models.ShiftMorning
	}
	return models.ShiftAfternoon
}

// DateContext is the human-readable home-zone date handed to the report
// generator.
func (c *Calendar) DateContext(now time.Time) string {
	return now.In(c.home).Format("January 2, 2006")
}

func targetHour(currentHour int, sched models.Schedule) int {
	switch sched {
	case models.ScheduleMorning:
		return MorningHour
	case models.ScheduleAfternoon:
		return AfternoonHour
	default:
		// BOTH: whichever of the two is still ahead today, wrapping back
		// to the morning slot once both have passed.
		switch {
		case currentHour < MorningHour:
			return MorningHour
		case currentHour < AfternoonHour:
			return AfternoonHour
		default:
			return MorningHour
		}
	}
}

func relativeLabel(now, target time.Time) string {
	switch civilDate(target).Sub(civilDate(now)) / (24 * time.Hour) {
	case -1:
		return "Yesterday"
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	default:
		return "Next " + target.Weekday().String()
	}
}

// civilDate strips a moment down to its calendar date, pinned to UTC so the
// subtraction in relativeLabel is immune to DST offsets.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
