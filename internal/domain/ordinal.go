package domain

import (
	"fmt"
	"time"
)

// DateFormat is the ISO-8601 layout used to print and parse ordinal dates
const DateFormat = "2006-01-02"

// Ordinal is a day count where 0001-01-01 (proleptic Gregorian) is day 1.
// It is the only date representation used by the valuation engine.
type Ordinal int

var epochUnix = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()

const secondsPerDay = 24 * 60 * 60

// OrdinalFromTime returns the ordinal of the calendar day of t in its own location
func OrdinalFromTime(t time.Time) Ordinal {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Ordinal((day.Unix()-epochUnix)/secondsPerDay) + 1
}

// ParseOrdinal parses a "2006-01-02" date
func ParseOrdinal(s string) (Ordinal, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q want format %q: %w", s, DateFormat, err)
	}
	return OrdinalFromTime(t), nil
}

// Time returns midnight UTC of the day
func (o Ordinal) Time() time.Time {
	return time.Unix(epochUnix+int64(o-1)*secondsPerDay, 0).UTC()
}

func (o Ordinal) String() string { return o.Time().Format(DateFormat) }

// Days returns the number of days in the inclusive range [start, end]
func Days(start, end Ordinal) int { return int(end-start) + 1 }
