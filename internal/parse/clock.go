package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var clockRe = regexp.MustCompile(`^\s*(\d{1,2})\s*:\s*(\d{2})\s*$`)

// DayLayout is the calendar-day key format used by the override ledger.
const DayLayout = "2006-01-02"

// Clock is a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// String formats the clock as zero-padded HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at this clock time on day's calendar date, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// ParseClock parses "HH:MM" (24-hour); a single-digit hour is accepted.
func ParseClock(raw string) (Clock, error) {
	m := clockRe.FindStringSubmatch(raw)
	if m == nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: want HH:MM", raw)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return Clock{}, fmt.Errorf("time of day %q out of range", raw)
	}
	return Clock{Hour: h, Minute: mm}, nil
}

// NormalizeClock parses raw and returns its canonical HH:MM form.
func NormalizeClock(raw string) (string, error) {
	c, err := ParseClock(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// DayKey returns the YYYY-MM-DD key of t's calendar day in t's own location.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// StartOfDay returns midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatRemaining renders a countdown as "HH:MM:SS", or "Nd HH:MM:SS" past a day.
// Negative durations render as zero.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	seconds %= 86400
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
