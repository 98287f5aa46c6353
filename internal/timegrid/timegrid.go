package timegrid

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout формат календарной даты во входных параметрах.
const DateLayout = "2006-01-02"

var ErrInvalidClock = errors.New("invalid clock time")

// ResolveWeekday возвращает день недели по собственному календарю даты,
// без перевода часовых поясов.
func ResolveWeekday(date time.Time) time.Weekday {
	return date.Weekday()
}

// IntervalsOverlap проверяет пересечение полуинтервалов [aStart, aEnd) и [bStart, bEnd).
// Интервалы, соприкасающиеся концами, не пересекаются.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func AddMinutes(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Minute)
}

// IsWithin reports whether start <= t < end.
func IsWithin(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// StartOfDay отбрасывает время, сохраняя location даты.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate разбирает дату YYYY-MM-DD в заданной location (nil = time.Local).
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full english names ("monday") and three-letter forms ("mon").
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdayNames[name]; ok {
		return wd, nil
	}
	if len(name) == 3 {
		for full, wd := range weekdayNames {
			if strings.HasPrefix(full, name) {
				return wd, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ClockTime is a wall-clock time of day in minutes since midnight.
type ClockTime int

// ParseClock разбирает строку вида "HH:mm". Допускается "24:00" как конец суток.
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return ClockTime(24 * 60), nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClock for literals; it panics on malformed input.
func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Clock returns the time of day of t.
func Clock(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On places the clock time on the calendar day of date as a wall-clock time in
// date's location. On DST days this differs from midnight plus c minutes.
// Values past 24:00 roll over to the next day.
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, date.Location())
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalYAML keeps catalog files readable ("09:00") for both yaml.v2 and yaml.v3.
func (c *ClockTime) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return c.UnmarshalText([]byte(raw))
}

func (c ClockTime) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start time.Time, minutes int) Interval {
	return Interval{Start: start, End: AddMinutes(start, minutes)}
}

func (i Interval) Overlaps(other Interval) bool {
	return IntervalsOverlap(i.Start, i.End, other.Start, other.End)
}

func (i Interval) Contains(t time.Time) bool {
	return IsWithin(t, i.Start, i.End)
}

// Covers reports whether other lies fully inside i.
func (i Interval) Covers(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) IsEmpty() bool {
	return !i.End.After(i.Start)
}
