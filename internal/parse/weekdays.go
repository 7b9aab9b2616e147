package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AllDays is the mask with every weekday set.
const AllDays = 0x7f

var (
	dayNames = []struct {
		en, ko string
	}{
		{"mon", "월"}, {"tue", "화"}, {"wed", "수"}, {"thu", "목"}, {"fri", "금"}, {"sat", "토"}, {"sun", "일"},
	}
	dayRangeRe = regexp.MustCompile(`^([a-z]{3})-([a-z]{3})$`)
	splitRe    = regexp.MustCompile(`[\s,]+`)
)

// WeekdayBit returns the mask bit for t's weekday: Monday is bit 0, Sunday bit 6.
func WeekdayBit(t time.Time) int {
	return 1 << ((int(t.Weekday()) + 6) % 7)
}

// ParseWeekdays converts a day list into a weekday mask. Accepted forms:
// "mon,wed,fri", "mon-fri", "월수금", "1,3,5" (1 = Monday .. 7 = Sunday),
// "weekdays", "weekend", "daily".
func ParseWeekdays(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return 0, fmt.Errorf("empty weekday list")
	case "daily", "all", "매일":
		return AllDays, nil
	case "weekdays", "평일":
		return 0x1f, nil
	case "weekend", "주말":
		return 0x60, nil
	}

	mask := 0
	for _, tok := range splitRe.Split(s, -1) {
		if tok == "" {
			continue
		}
		bits, err := parseDayToken(tok)
		if err != nil {
			return 0, fmt.Errorf("invalid weekday list %q: %w", raw, err)
		}
		mask |= bits
	}
	return mask, nil
}

func parseDayToken(tok string) (int, error) {
	if n, err := strconv.Atoi(tok); err == nil {
		if n < 1 || n > 7 {
			return 0, fmt.Errorf("day number %d out of range 1-7", n)
		}
		return 1 << (n - 1), nil
	}
	if m := dayRangeRe.FindStringSubmatch(tok); m != nil {
		from, ok1 := englishDay(m[1])
		to, ok2 := englishDay(m[2])
		if !ok1 || !ok2 || from > to {
			return 0, fmt.Errorf("bad day range %q", tok)
		}
		bits := 0
		for i := from; i <= to; i++ {
			bits |= 1 << i
		}
		return bits, nil
	}
	if i, ok := englishDay(tok); ok {
		return 1 << i, nil
	}

	// Korean labels may be run together, e.g. "월수금".
	bits := 0
	for _, r := range tok {
		found := false
		for i, d := range dayNames {
			if string(r) == d.ko {
				bits |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown day %q", tok)
		}
	}
	return bits, nil
}

func englishDay(tok string) (int, bool) {
	if len(tok) < 3 {
		return 0, false
	}
	for i, d := range dayNames {
		if tok[:3] == d.en {
			return i, true
		}
	}
	return 0, false
}

// FormatWeekdays renders a mask as bracketed Korean labels, "[월] [수] [금]", or "-" when empty.
func FormatWeekdays(mask int) string {
	var parts []string
	for i, d := range dayNames {
		if mask&(1<<i) != 0 {
			parts = append(parts, "["+d.ko+"]")
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// CronDays renders a mask as a cron day-of-week field (0 = Sunday), e.g. "1,3,5".
func CronDays(mask int) string {
	var parts []string
	for i := 0; i < 7; i++ {
		if mask&(1<<i) != 0 {
			parts = append(parts, strconv.Itoa((i+1)%7))
		}
	}
	return strings.Join(parts, ",")
}
