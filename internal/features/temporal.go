package features

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ErrMalformedTimestamp is returned (wrapped in a RowError) when a raw
// timestamp cannot be parsed. Every temporal and cohort feature depends on it,
// so there is no default.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// timestampLayouts covers ISO-8601 input and the text form BigQuery produces
// for CAST(TIMESTAMP AS STRING). Fractional seconds are optional in all of them.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp parses a raw timestamp into a UTC instant. Values without a
// zone are read as UTC.
func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrMalformedTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
}

// temporal holds the calendar decomposition of one instant.
type temporal struct {
	date         civil.Date
	year         int
	month        int
	day          int
	dayOfWeek    int
	hour         int
	quarter      int
	weekOfMonth  int
	isEndOfMonth int
}

func decompose(t time.Time) temporal {
	day := t.Day()
	month := int(t.Month())
	return temporal{
		date:         civil.DateOf(t),
		year:         t.Year(),
		month:        month,
		day:          day,
		dayOfWeek:    int(t.Weekday()) + 1,
		hour:         t.Hour(),
		quarter:      (month-1)/3 + 1,
		weekOfMonth:  (day + 6) / 7,
		isEndOfMonth: boolToInt(day >= EndOfMonthFirstDay),
	}
}

// DayName returns the localized day name for a 1-based (Sunday first)
// day-of-week, or "" when out of range.
func DayName(dayOfWeek int) string {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return ""
	}
	return dayNames[dayOfWeek]
}

// HourBin maps an hour of day to its band.
func HourBin(hour int) string {
	switch {
	case hour >= 0 && hour <= 5:
		return HourBinEarlyMorning
	case hour >= 6 && hour <= 11:
		return HourBinMorning
	case hour >= 12 && hour <= 14:
		return HourBinMidday
	case hour >= 15 && hour <= 18:
		return HourBinAfternoon
	case hour >= 19 && hour <= 21:
		return HourBinEvening
	default:
		return HourBinLateNight
	}
}

func isWeekend(dayOfWeek int) bool {
	return dayOfWeek == 1 || dayOfWeek == 7
}

// WeekPart labels a day-of-week as weekend or weekday.
func WeekPart(dayOfWeek int) string {
	if isWeekend(dayOfWeek) {
		return WeekPartWeekend
	}
	return WeekPartWeekday
}

func isNightHour(hour int) bool {
	return hour >= 0 && hour <= NightLastHour
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
