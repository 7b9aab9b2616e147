package model

import "time"

// Result is the outcome of a firing decision.
type Result string

const (
	ResultPlayed  Result = "PLAYED"
	ResultMissed  Result = "MISSED"
	ResultSkipped Result = "SKIPPED"
	ResultFailed  Result = "FAILED"
)

// EventLog is the audit row written for every firing decision.
type EventLog struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	OccurredAt   time.Time `gorm:"not null;index" json:"occurred_at"`
	ScheduleID   int64     `gorm:"index" json:"schedule_id"`
	ScheduleName string    `gorm:"size:128" json:"schedule_name"`
	SoundName    string    `gorm:"size:128" json:"sound_name"`
	Result       Result    `gorm:"size:16;not null;index" json:"result"`
	Detail       string    `gorm:"size:512" json:"detail"`
}
