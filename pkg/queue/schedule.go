package queue

import (
	"fmt"
	"time"
)

// Schedule computes occurrences of a recurring job. String must be
// stable across process restarts: it participates in the uniqueness key
// of recurring definitions.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

// intervalSchedule fires at a fixed period.
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %s", s.every)
}

// dailySchedule fires once per day at a wall-clock time pinned to a
// fixed timezone, so server timezone drift cannot shift the occurrence.
type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

func (s dailySchedule) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", s.hour, s.minute, s.loc.String())
}

// EveryInterval returns a schedule firing every d.
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// EveryMinutes returns a schedule firing every n minutes.
func EveryMinutes(n int) Schedule {
	return intervalSchedule{every: time.Duration(n) * time.Minute}
}

// EveryHours returns a schedule firing every n hours.
func EveryHours(n int) Schedule {
	return intervalSchedule{every: time.Duration(n) * time.Hour}
}

// DailyAt returns a schedule firing daily at hour:minute in loc. A nil
// location defaults to UTC.
func DailyAt(hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return dailySchedule{hour: hour, minute: minute, loc: loc}
}
