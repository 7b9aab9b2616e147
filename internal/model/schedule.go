package model

import "time"

// ScheduleSet groups schedules; exactly one set is active at a time.
type ScheduleSet struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`

	// Associations
	Schedules []Schedule `gorm:"foreignKey:SetID" json:"-"`
}

// Schedule is a weekly recurring bell: ring Sound at TimeHHMM on every weekday in WeekdayMask.
// Bit 0 of the mask is Monday, bit 6 is Sunday.
type Schedule struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	SetID          int64     `gorm:"index;not null" json:"set_id"`
	Name           string    `gorm:"size:128;not null" json:"name"`
	WeekdayMask    int       `gorm:"not null" json:"weekday_mask"`
	TimeHHMM       string    `gorm:"column:time_hhmm;size:5;not null" json:"time_hhmm"`
	SoundID        int64     `gorm:"index;not null" json:"sound_id"`
	VolumeOverride *float64  `json:"volume_override"`
	Enabled        bool      `gorm:"not null" json:"enabled"`
	SortOrder      int       `gorm:"not null" json:"sort_order"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Associations
	Set   ScheduleSet `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Sound Sound       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
