package appointment

import (
	"regexp"
	"strconv"
	"time"
)

// timeOfDayPattern accepts 24-hour HH:MM with optional leading zero on the hour.
var timeOfDayPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// Interval is a half-open time range [Start, End). Two back-to-back slots, one
// ending exactly when the other starts, do not overlap.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// ParseTimeOfDay validates and splits an HH:MM string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, ErrInvalidTimeFormat
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// ToInterval combines a calendar date, an HH:MM time of day and a duration into
// a concrete interval, anchored in the date's location. The end is simply
// start + duration, so it may fall on the next calendar day.
func ToInterval(date time.Time, timeOfDay string, durationMins int) (Interval, error) {
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return Interval{}, err
	}
	if durationMins <= 0 {
		return Interval{}, ErrInvalidDuration
	}

	start := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
	return Interval{
		Start: start,
		End:   start.Add(time.Duration(durationMins) * time.Minute),
	}, nil
}

// ConflictsWith reports whether the candidate interval collides with any of the
// given appointments. Appointments whose stored time cannot be parsed are
// treated as conflicting rather than silently ignored.
func ConflictsWith(candidate Interval, existing []*Appointment) bool {
	for _, a := range existing {
		iv, err := a.Interval()
		if err != nil {
			return true
		}
		if candidate.Overlaps(iv) {
			return true
		}
	}
	return false
}
