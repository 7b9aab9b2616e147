package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers are alerted about decisions for the schedules they follow.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Schedules []*Schedule `gorm:"many2many:subscription_schedule_mapping;"`
}
