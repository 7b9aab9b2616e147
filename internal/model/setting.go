package model

// Setting is a process-wide key/value pair, e.g. the active schedule set.
type Setting struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"not null"`
}

// SettingActiveSetID is the key under which the active set id is stored.
const SettingActiveSetID = "active_set_id"
