package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
)

// Day is a calendar date without time of day or zone.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses the DD/MM/YYYY wire format.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(common.DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: date %q", common.ErrValidation, s)
	}
	return DayOf(t, time.UTC), nil
}

// Time returns midnight UTC of d, the value stored in DATE columns.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Day) String() string {
	return d.Time().Format(common.DayLayout)
}

func (d Day) IsZero() bool {
	return d == Day{}
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
