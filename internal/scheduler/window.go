package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Window is the weekly freeze: it starts at BeginDay BeginHour:00 and ends at
// EndDay EndHour:00, both in the scheduler's location. A window may wrap past
// Saturday midnight.
type Window struct {
	BeginDay  time.Weekday
	BeginHour int
	EndDay    time.Weekday
	EndHour   int
}

func DefaultWindow() Window {
	return Window{BeginDay: time.Monday, BeginHour: 0, EndDay: time.Saturday, EndHour: 0}
}

func (w Window) Validate() error {
	if w.BeginDay < time.Sunday || w.BeginDay > time.Saturday || w.EndDay < time.Sunday || w.EndDay > time.Saturday {
		return errors.New("freeze weekdays must be between Sunday and Saturday")
	}
	if w.BeginHour < 0 || w.BeginHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return errors.New("freeze hours must be between 0 and 23")
	}
	if w.BeginDay == w.EndDay && w.BeginHour == w.EndHour {
		return errors.New("freeze window cannot be empty")
	}
	return nil
}

// Contains reports whether t falls inside the freeze, using t's location.
func (w Window) Contains(t time.Time) bool {
	begin := weekMinute(w.BeginDay, w.BeginHour, 0)
	end := weekMinute(w.EndDay, w.EndHour, 0)
	now := weekMinute(t.Weekday(), t.Hour(), t.Minute())
	if begin < end {
		return now >= begin && now < end
	}
	return now >= begin || now < end
}

func weekMinute(day time.Weekday, hour, minute int) int {
	return int(day)*24*60 + hour*60 + minute
}

func (w Window) BeginSpec() string {
	return fmt.Sprintf("0 %d * * %d", w.BeginHour, int(w.BeginDay))
}

func (w Window) EndSpec() string {
	return fmt.Sprintf("0 %d * * %d", w.EndHour, int(w.EndDay))
}

// NextBegin returns the first freeze start strictly after t.
func (w Window) NextBegin(t time.Time) (time.Time, error) {
	return next(w.BeginSpec(), t)
}

// NextEnd returns the first freeze end strictly after t.
func (w Window) NextEnd(t time.Time) (time.Time, error) {
	return next(w.EndSpec(), t)
}

// NextTransition returns whichever of the next begin and end comes first.
func (w Window) NextTransition(t time.Time) (time.Time, error) {
	begin, err := w.NextBegin(t)
	if err != nil {
		return time.Time{}, err
	}
	end, err := w.NextEnd(t)
	if err != nil {
		return time.Time{}, err
	}
	if end.Before(begin) {
		return end, nil
	}
	return begin, nil
}

func next(spec string, t time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}
	return schedule.Next(t), nil
}
