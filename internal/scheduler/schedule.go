package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" in 24-hour form.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	hourPart, minutePart, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", value)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant at this time of day on day's calendar date.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// Weekdays is indexed by time.Weekday (Sunday = 0).
type Weekdays [7]bool

func EveryDay() Weekdays {
	return Weekdays{true, true, true, true, true, true, true}
}

func WorkWeek() Weekdays {
	return Weekdays{time.Monday: true, time.Tuesday: true, time.Wednesday: true, time.Thursday: true, time.Friday: true}
}

func (w Weekdays) Has(day time.Weekday) bool {
	return w[day]
}

func (w Weekdays) Any() bool {
	for _, on := range w {
		if on {
			return true
		}
	}
	return false
}

func (w Weekdays) String() string {
	var names []string
	for day, on := range w {
		if on {
			names = append(names, time.Weekday(day).String()[:3])
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays accepts day names ("mon", "Tuesday") plus the shorthands
// "all", "daily" and "weekdays".
func ParseWeekdays(values []string) (Weekdays, error) {
	var days Weekdays
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			switch name {
			case "":
				continue
			case "all", "daily", "everyday":
				return EveryDay(), nil
			case "weekdays", "workdays":
				work := WorkWeek()
				for i := range days {
					days[i] = days[i] || work[i]
				}
				continue
			}
			day, ok := weekdayNames[name]
			if !ok {
				return Weekdays{}, fmt.Errorf("unknown weekday %q", part)
			}
			days[day] = true
		}
	}
	return days, nil
}

// Config is the recurring job: which database, at what time, on which days.
type Config struct {
	TargetDatabase string
	At             TimeOfDay
	Weekdays       Weekdays
}

// Phase is the scheduler's position in its state machine.
type Phase int

const (
	Disarmed Phase = iota
	ArmedWaiting
	ArmedTriggeredToday
)

func (p Phase) String() string {
	switch p {
	case ArmedWaiting:
		return "armed"
	case ArmedTriggeredToday:
		return "armed (triggered today)"
	default:
		return "disarmed"
	}
}

// State is the scheduler's owned state. LastTriggered holds a calendar date
// at midnight local time, or the zero time when it has not fired.
type State struct {
	Config        Config
	Phase         Phase
	LastTriggered time.Time
}

func (s State) Armed() bool {
	return s.Phase != Disarmed
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
