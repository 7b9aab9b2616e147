package model

import "time"

// Sound is a playable audio asset stored in the sounds directory.
type Sound struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	FileName  string    `gorm:"size:512;not null" json:"file_name"`
	Volume    float64   `gorm:"not null" json:"volume"` // default volume, [0,2]
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
