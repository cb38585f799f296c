// Package recurrence expands a repeating window rule into concrete windows.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxOccurrences caps a single expansion.
const MaxOccurrences = 366

// Frequency selects which days a series repeats on.
type Frequency string

const (
	// FrequencyDaily repeats every day, or every listed weekday when
	// Weekdays is set.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly repeats on the listed weekdays, or on the first
	// window's weekday when none are listed.
	FrequencyWeekly Frequency = "weekly"
)

var (
	ErrInvalidFrequency   = errors.New("recurrence: invalid frequency")
	ErrInvalidDuration    = errors.New("recurrence: window end must be after start")
	ErrInvalidUntil       = errors.New("recurrence: until must not precede the first window")
	ErrTooManyOccurrences = fmt.Errorf("recurrence: series exceeds %d windows", MaxOccurrences)

	// ErrFirstWeekdayExcluded rejects weekday lists that would skip the
	// window the series starts from.
	ErrFirstWeekdayExcluded = errors.New("recurrence: weekdays must include the first window's weekday")
)

// ParseFrequency accepts "daily" and "weekly" in any case.
func ParseFrequency(value string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(value))); f {
	case FrequencyDaily, FrequencyWeekly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
}

// Rule describes a series. Until is inclusive: a window starting on the
// Until instant is part of the series.
type Rule struct {
	Frequency Frequency
	Weekdays  []time.Weekday
	Until     time.Time
}

// Occurrence is one window of an expanded series. Times are UTC.
type Occurrence struct {
	Index int
	Start time.Time
	End   time.Time
}

// Engine expands rules on the wall clock of its location, so a 09:00 series
// stays at 09:00 local time across DST changes.
type Engine struct {
	location *time.Location
}

// NewEngine returns an Engine for loc, or UTC when loc is nil.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Expand returns the windows of rule whose first window is [start, end).
// Every occurrence keeps the first window's time of day and duration.
func (e *Engine) Expand(rule Rule, start, end time.Time) ([]Occurrence, error) {
	loc := time.UTC
	if e != nil && e.location != nil {
		loc = e.location
	}

	if !end.After(start) {
		return nil, ErrInvalidDuration
	}
	if rule.Until.IsZero() || rule.Until.Before(start) {
		return nil, ErrInvalidUntil
	}

	days, err := weekdaySet(rule, start.In(loc).Weekday())
	if err != nil {
		return nil, err
	}

	duration := end.Sub(start)
	template := start.In(loc)
	until := rule.Until.In(loc)

	var occurrences []Occurrence
	for date := template; !date.After(until); date = nextDay(date, template, loc) {
		if _, ok := days[date.Weekday()]; !ok {
			continue
		}
		if len(occurrences) == MaxOccurrences {
			return nil, ErrTooManyOccurrences
		}
		occurrences = append(occurrences, Occurrence{
			Index: len(occurrences),
			Start: date.UTC(),
			End:   date.Add(duration).UTC(),
		})
	}
	return occurrences, nil
}

func weekdaySet(rule Rule, first time.Weekday) (map[time.Weekday]struct{}, error) {
	set := make(map[time.Weekday]struct{}, 7)
	for _, day := range rule.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			return nil, fmt.Errorf("recurrence: invalid weekday %d", day)
		}
		set[day] = struct{}{}
	}

	switch rule.Frequency {
	case FrequencyDaily:
		if len(set) == 0 {
			for day := time.Sunday; day <= time.Saturday; day++ {
				set[day] = struct{}{}
			}
		}
	case FrequencyWeekly:
		if len(set) == 0 {
			set[first] = struct{}{}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, rule.Frequency)
	}
	if _, ok := set[first]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrFirstWeekdayExcluded, first)
	}
	return set, nil
}

// nextDay moves to the same wall-clock time on the following calendar day.
func nextDay(current, template time.Time, loc *time.Location) time.Time {
	y, m, d := current.In(loc).Date()
	return time.Date(y, m, d+1, template.Hour(), template.Minute(), template.Second(), template.Nanosecond(), loc)
}
