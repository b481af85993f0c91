package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Date is the day a transaction or reminder occurs on. The backend sends
// either plain dates or full RFC 3339 timestamps.
//
// Values without a zone (plain dates, local wall-clock times) are floating:
// they name the same calendar day in every zone. Timestamps are instants and
// fall on whatever day the reader's zone says.
type Date struct {
	time.Time
	floating bool
}

var ErrZeroDate = errors.New("date cannot be zero")

const (
	layoutDay       = "2006-01-02"
	layoutWallClock = "2006-01-02T15:04:05"
)

var dateLayouts = []struct {
	layout   string
	floating bool
}{
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{layoutWallClock, true},
	{layoutDay, true},
}

// NewDate creates a floating calendar date.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), floating: true}
}

// ParseDate accepts any of the layouts the backend is known to emit.
func ParseDate(s string) (Date, error) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return Date{Time: t, floating: l.floating}, nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

// CalendarIn returns the calendar day of d as seen from loc. Floating dates
// are returned unchanged.
func (d Date) CalendarIn(loc *time.Location) (year int, month time.Month, day int) {
	if d.floating || loc == nil {
		return d.Time.Date()
	}
	return d.Time.In(loc).Date()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

func (d Date) String() string {
	return d.Format(layoutDay)
}

func (d Date) atMidnight() bool {
	h, m, sec := d.Clock()
	return h == 0 && m == 0 && sec == 0 && d.Nanosecond() == 0
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	switch {
	case d.IsZero():
		return []byte("null"), nil
	case d.floating && d.atMidnight():
		return json.Marshal(d.Format(layoutDay))
	case d.floating:
		return json.Marshal(d.Format(layoutWallClock))
	}
	return json.Marshal(d.Format(time.RFC3339))
}
