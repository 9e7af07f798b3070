package schedule

import (
	"testing"
	"time"

	"github.com/fiffu/marketoracle/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	home, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	display, err := time.LoadLocation("Europe/Dublin")
	require.NoError(t, err)
	return NewCalendarIn(home, display)
}

// at builds a home-zone (Taipei, UTC+8) moment on a fixed reference week:
// Mon 2024-07-01 through Sun 2024-07-07.
func at(day, hour int) time.Time {
	taipei := time.FixedZone("CST", 8*60*60)
	return time.Date(2024, 7, day, hour, 0, 0, 0, taipei)
}

func TestNextDispatch_AfternoonAfterHours(t *testing.T) {
	cal := testCalendar(t)

	// Tuesday 16:00, afternoon slot already gone: target is Wednesday 15:00.
	next := cal.NextDispatch(at(2, 16), models.ScheduleAfternoon)
	assert.Equal(t, 15, next.Home.Hour())
	assert.Equal(t, 3, next.Home.Day())
	assert.Equal(t, "Tomorrow", next.HomeLabel)

	// Taipei 15:00 == Dublin 08:00 same day (IST = UTC+1 in July).
	assert.Equal(t, 8, next.Display.Hour())
	assert.Equal(t, "Tomorrow", next.DisplayLabel)
}

func TestNextDispatch_MorningBeforeHours(t *testing.T) {
	cal := testCalendar(t)

	next := cal.NextDispatch(at(2, 6), models.ScheduleMorning)
	assert.Equal(t, 7, next.Home.Hour())
	assert.Equal(t, 2, next.Home.Day())
	assert.Equal(t, "Today", next.HomeLabel)

	// Taipei Tue 07:00 is Dublin Tue 00:00; but "now" in Dublin is still
	// Monday 23:00, so the display zone legitimately says Tomorrow.
	assert.Equal(t, "Tomorrow", next.DisplayLabel)
}

func TestNextDispatch_MorningAfterCutoffIsYesterdayInDisplayZone(t *testing.T) {
	cal := testCalendar(t)

	// Tuesday 08:00 Taipei, morning slot passed: target Wednesday 07:00
	// Taipei == Wednesday 00:00 Dublin. Dublin now is Tuesday 01:00, so the
	// display label is Tomorrow while home also says Tomorrow.
	next := cal.NextDispatch(at(2, 8), models.ScheduleMorning)
	assert.Equal(t, "Tomorrow", next.HomeLabel)
	assert.Equal(t, "Tomorrow", next.DisplayLabel)
}

func TestNextDispatch_WeekendSkips(t *testing.T) {
	cal := testCalendar(t)

	// Friday 16:00, afternoon passed; Saturday and Sunday are skipped.
	next := cal.NextDispatch(at(5, 16), models.ScheduleAfternoon)
	assert.Equal(t, time.Monday, next.Home.Weekday())
	assert.Equal(t, 8, next.Home.Day())
	assert.Equal(t, "Next Monday", next.HomeLabel)

	// Saturday: both slots advance to Monday.
	next = cal.NextDispatch(at(6, 10), models.ScheduleMorning)
	assert.Equal(t, time.Monday, next.Home.Weekday())
	assert.Equal(t, "Next Monday", next.HomeLabel)
}

func TestNextDispatch_DisplayZoneLagsIntoSunday(t *testing.T) {
	cal := testCalendar(t)

	// Friday in December (Dublin on GMT): the Monday 07:00 Taipei target is
	// Sunday 23:00 in Dublin, so the two zones' labels diverge.
	taipei := time.FixedZone("CST", 8*60*60)
	now := time.Date(2024, 12, 6, 16, 0, 0, 0, taipei)

	next := cal.NextDispatch(now, models.ScheduleMorning)
	assert.Equal(t, time.Monday, next.Home.Weekday())
	assert.Equal(t, "Next Monday", next.HomeLabel)
	assert.Equal(t, time.Sunday, next.Display.Weekday())
	assert.Equal(t, 23, next.Display.Hour())
	assert.Equal(t, "Next Sunday", next.DisplayLabel)
}

func TestNextDispatch_BothPicksNextSlot(t *testing.T) {
	cal := testCalendar(t)

	// Before the morning slot.
	next := cal.NextDispatch(at(2, 5), models.ScheduleBoth)
	assert.Equal(t, MorningHour, next.Home.Hour())
	assert.Equal(t, "Today", next.HomeLabel)

	// Between the two slots.
	next = cal.NextDispatch(at(2, 10), models.ScheduleBoth)
	assert.Equal(t, AfternoonHour, next.Home.Hour())
	assert.Equal(t, "Today", next.HomeLabel)

	// Past both: wraps to the next morning.
	next = cal.NextDispatch(at(2, 20), models.ScheduleBoth)
	assert.Equal(t, MorningHour, next.Home.Hour())
	assert.Equal(t, "Tomorrow", next.HomeLabel)
}

func TestNextDispatch_String(t *testing.T) {
	cal := testCalendar(t)

	next := cal.NextDispatch(at(2, 16), models.ScheduleAfternoon)
	assert.Equal(t, "Tomorrow at 08:00 IST / Tomorrow at 15:00 CST", next.String())
}

func TestShiftAllowed(t *testing.T) {
	cal := testCalendar(t)

	assert.True(t, cal.ShiftAllowed(at(2, 9), models.ScheduleMorning, false))
	assert.False(t, cal.ShiftAllowed(at(2, 13), models.ScheduleMorning, false))
	assert.False(t, cal.ShiftAllowed(at(2, 9), models.ScheduleAfternoon, false))
	assert.True(t, cal.ShiftAllowed(at(2, 13), models.ScheduleAfternoon, false))
	assert.True(t, cal.ShiftAllowed(at(2, 9), models.ScheduleBoth, false))
	assert.True(t, cal.ShiftAllowed(at(2, 23), models.ScheduleBoth, false))

	// Manual bypasses the gate entirely.
	assert.True(t, cal.ShiftAllowed(at(2, 13), models.ScheduleMorning, true))
	assert.True(t, cal.ShiftAllowed(at(2, 9), models.ScheduleAfternoon, true))
}

func TestCurrentShift(t *testing.T) {
	cal := testCalendar(t)

	assert.Equal(t, models.ShiftMorning, cal.CurrentShift(at(2, 0)))
	assert.Equal(t, models.ShiftMorning, cal.CurrentShift(at(2, 11)))
	assert.Equal(t, models.ShiftAfternoon, cal.CurrentShift(at(2, 12)))
	assert.Equal(t, models.ShiftAfternoon, cal.CurrentShift(at(2, 23)))
}
