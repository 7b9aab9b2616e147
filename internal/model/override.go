package model

import "time"

// OverrideAction is the kind of fact recorded in the override ledger.
type OverrideAction string

const (
	ActionSkipOnce  OverrideAction = "SKIP_ONCE"
	ActionFiredOnce OverrideAction = "FIRED_ONCE"
	ActionPauseDay  OverrideAction = "PAUSE_DAY"
)

// DayWideScheduleID is the pseudo schedule id used by day-wide facts.
const DayWideScheduleID int64 = 0

// Override is one append-only ledger row. Identical rows may repeat; readers
// only ask whether a matching row exists.
type Override struct {
	ID         int64          `gorm:"primaryKey"`
	Date       string         `gorm:"size:10;not null;index:idx_overrides_lookup,priority:1"` // YYYY-MM-DD
	ScheduleID int64          `gorm:"not null;index:idx_overrides_lookup,priority:2"`
	Action     OverrideAction `gorm:"size:16;not null;index:idx_overrides_lookup,priority:3"`
	Note       string         `gorm:"size:256"`
	AppliedAt  time.Time      `gorm:"autoCreateTime;not null"`
}
