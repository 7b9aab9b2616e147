package store

import (
	"errors"
	"time"

	"tajong-backend/internal/model"
)

// ErrNotFound is returned when a catalog row does not exist.
var ErrNotFound = errors.New("record not found")

// ScheduleRow is a schedule joined with its sound's defaults, as read by the resolver.
type ScheduleRow struct {
	ID             int64    `gorm:"column:id"`
	SetID          int64    `gorm:"column:set_id"`
	Name           string   `gorm:"column:name"`
	WeekdayMask    int      `gorm:"column:weekday_mask"`
	TimeHHMM       string   `gorm:"column:time_hhmm"`
	VolumeOverride *float64 `gorm:"column:volume_override"`
	Enabled        bool     `gorm:"column:enabled"`
	SoundName      string   `gorm:"column:sound_name"`
	SoundFile      string   `gorm:"column:sound_file"`
	SoundVolume    float64  `gorm:"column:sound_volume"`
}

// EffectiveVolume is the override when present, otherwise the sound's default, clamped to [0,2].
func (r ScheduleRow) EffectiveVolume() float64 {
	v := r.SoundVolume
	if r.VolumeOverride != nil {
		v = *r.VolumeOverride
	}
	return ClampVolume(v)
}

// ClampVolume limits v to the playable range [0,2].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

// LogFilter narrows a history query. Zero values mean "no constraint";
// From and To are inclusive calendar days.
type LogFilter struct {
	From    time.Time
	To      time.Time
	Result  model.Result
	Keyword string
	Limit   int
}
