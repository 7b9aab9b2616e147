package api

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"tajong-backend/internal/model"
	"tajong-backend/internal/parse"
)

// scheduleView adds display fields to a schedule. NextRun is the plain
// recurrence and ignores skip and pause overrides.
type scheduleView struct {
	model.Schedule
	Weekdays string     `json:"weekdays"`
	Cron     string     `json:"cron"`
	NextRun  *time.Time `json:"next_run"`
}

func (h *Handler) now() time.Time {
	return time.Now().In(h.location)
}

func newScheduleView(s model.Schedule, now time.Time) scheduleView {
	v := scheduleView{Schedule: s, Weekdays: parse.FormatWeekdays(s.WeekdayMask)}
	expr, ok := cronExpr(s)
	if !ok {
		return v
	}
	v.Cron = expr
	if !s.Enabled {
		return v
	}
	if next, err := gronx.NextTickAfter(expr, now, false); err == nil {
		v.NextRun = &next
	}
	return v
}

// cronExpr renders the schedule as a five-field cron expression.
func cronExpr(s model.Schedule) (string, bool) {
	if s.WeekdayMask&parse.AllDays == 0 {
		return "", false
	}
	c, err := parse.ParseClock(s.TimeHHMM)
	if err != nil {
		return "", false
	}
	expr := fmt.Sprintf("%d %d * * %s", c.Minute, c.Hour, parse.CronDays(s.WeekdayMask))
	if !gronx.IsValid(expr) {
		return "", false
	}
	return expr, true
}
